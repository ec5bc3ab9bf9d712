package models

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	contract "visitorbook/contracts/visitorbook"
	"visitorbook/pkg/domain"
	dErrors "visitorbook/pkg/domain-errors"
)

// Registry rejections. Each carries the data a caller needs to diagnose the
// failure and renders the matching contract revert payload.

// InsufficientPaymentError: the attached value was below the fee.
type InsufficientPaymentError struct {
	Visitor common.Address
	Payment *uint256.Int
}

func (e *InsufficientPaymentError) Error() string {
	return fmt.Sprintf("insufficient payment from %s: %s", e.Visitor.Hex(), domain.FormatAmount(e.Payment))
}

func (e *InsufficientPaymentError) Code() dErrors.Code { return dErrors.CodeInsufficientPayment }

func (e *InsufficientPaymentError) RevertData() ([]byte, error) {
	return contract.EncodeInsufficientPayment(e.Visitor, e.Payment)
}

func (e *InsufficientPaymentError) Details() map[string]any {
	return withRevert(e, map[string]any{
		"visitor": e.Visitor.Hex(),
		"payment": domain.FormatAmount(e.Payment),
	})
}

// AlreadyVisitedError: the caller is already registered.
type AlreadyVisitedError struct{}

func (e *AlreadyVisitedError) Error() string { return "address has already visited" }

func (e *AlreadyVisitedError) Code() dErrors.Code { return dErrors.CodeAlreadyVisited }

func (e *AlreadyVisitedError) RevertData() ([]byte, error) { return contract.EncodeAlreadyVisited() }

func (e *AlreadyVisitedError) Details() map[string]any { return withRevert(e, map[string]any{}) }

// TransferFailedError: the reward transfer back to the visitor failed. The
// registration that preceded it is kept.
type TransferFailedError struct {
	Recipient common.Address
	Amount    *uint256.Int
	Err       error
}

func (e *TransferFailedError) Error() string {
	msg := fmt.Sprintf("reward transfer of %s to %s failed", domain.FormatAmount(e.Amount), e.Recipient.Hex())
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransferFailedError) Unwrap() error { return e.Err }

func (e *TransferFailedError) Code() dErrors.Code { return dErrors.CodeTransferFailed }

func (e *TransferFailedError) RevertData() ([]byte, error) {
	return contract.EncodeTransferFailed(e.Recipient, e.Amount)
}

func (e *TransferFailedError) Details() map[string]any {
	return withRevert(e, map[string]any{
		"recipient": e.Recipient.Hex(),
		"amount":    domain.FormatAmount(e.Amount),
	})
}

// IndexOutOfBoundsError: the requested index is not below the visitor count.
type IndexOutOfBoundsError struct {
	Index *uint256.Int
	Total uint64
}

func (e *IndexOutOfBoundsError) Error() string {
	return fmt.Sprintf("index %s out of bounds for %d visitors", domain.FormatAmount(e.Index), e.Total)
}

func (e *IndexOutOfBoundsError) Code() dErrors.Code { return dErrors.CodeIndexOutOfBounds }

func (e *IndexOutOfBoundsError) RevertData() ([]byte, error) { return contract.EncodeIndexOutOfBounds() }

func (e *IndexOutOfBoundsError) Details() map[string]any {
	return withRevert(e, map[string]any{
		"index":          domain.FormatAmount(e.Index),
		"total_visitors": e.Total,
	})
}

type reverter interface {
	RevertData() ([]byte, error)
}

func withRevert(r reverter, fields map[string]any) map[string]any {
	if data, err := r.RevertData(); err == nil {
		fields["revert_data"] = hexutil.Encode(data)
	}
	return fields
}
