// Package visitorbook holds the contract interface of the visitor registry and
// the EVM encodings derived from it: error selectors with their revert
// payloads, and the Visit event as a log with topics and data.
//
// Encodings follow the Solidity ABI so that off-the-shelf EVM tooling can
// decode what the service emits.
package visitorbook

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// ABIJSON is the contract interface.
const ABIJSON = `[
	{"type":"function","name":"initialize","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"function","name":"signGuestbook","stateMutability":"payable","inputs":[{"name":"message","type":"string"}],"outputs":[]},
	{"type":"function","name":"getTotalVisitors","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getVisitorAtIndex","stateMutability":"view","inputs":[{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"hasAddressVisited","stateMutability":"view","inputs":[{"name":"addr","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"event","name":"Visit","anonymous":false,"inputs":[
		{"name":"sender","type":"address","indexed":true},
		{"name":"message","type":"string","indexed":false}
	]},
	{"type":"error","name":"InsufficientPayment","inputs":[{"name":"visitor","type":"address"},{"name":"payment","type":"uint256"}]},
	{"type":"error","name":"TransferFailed","inputs":[{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"}]},
	{"type":"error","name":"AlreadyVisited","inputs":[]},
	{"type":"error","name":"IndexOutOfBounds","inputs":[]}
]`

// Error and event names as they appear in the ABI.
const (
	ErrorInsufficientPayment = "InsufficientPayment"
	ErrorTransferFailed      = "TransferFailed"
	ErrorAlreadyVisited      = "AlreadyVisited"
	ErrorIndexOutOfBounds    = "IndexOutOfBounds"
	EventVisit               = "Visit"
)

var parsed = mustParse(ABIJSON)

func mustParse(def string) abi.ABI {
	a, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("visitorbook: invalid contract ABI: %v", err))
	}
	return a
}

// ABI returns the parsed contract interface.
func ABI() abi.ABI {
	return parsed
}

// Selector returns the 4-byte selector of the named error.
func Selector(name string) ([4]byte, error) {
	e, ok := parsed.Errors[name]
	if !ok {
		return [4]byte{}, fmt.Errorf("unknown error %q", name)
	}
	var sel [4]byte
	copy(sel[:], e.ID[:4])
	return sel, nil
}

// EncodeInsufficientPayment returns the revert payload of InsufficientPayment(visitor, payment).
func EncodeInsufficientPayment(visitor common.Address, payment *uint256.Int) ([]byte, error) {
	return encodeError(ErrorInsufficientPayment, visitor, toBig(payment))
}

// EncodeTransferFailed returns the revert payload of TransferFailed(recipient, amount).
func EncodeTransferFailed(recipient common.Address, amount *uint256.Int) ([]byte, error) {
	return encodeError(ErrorTransferFailed, recipient, toBig(amount))
}

// EncodeAlreadyVisited returns the revert payload of AlreadyVisited().
func EncodeAlreadyVisited() ([]byte, error) {
	return encodeError(ErrorAlreadyVisited)
}

// EncodeIndexOutOfBounds returns the revert payload of IndexOutOfBounds().
func EncodeIndexOutOfBounds() ([]byte, error) {
	return encodeError(ErrorIndexOutOfBounds)
}

func encodeError(name string, args ...any) ([]byte, error) {
	e, ok := parsed.Errors[name]
	if !ok {
		return nil, fmt.Errorf("unknown error %q", name)
	}
	packed, err := e.Inputs.Pack(args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", name, err)
	}
	out := make([]byte, 0, 4+len(packed))
	out = append(out, e.ID[:4]...)
	return append(out, packed...), nil
}

// DecodeRevert resolves a revert payload to the error name and its arguments.
func DecodeRevert(data []byte) (string, []any, error) {
	if len(data) < 4 {
		return "", nil, fmt.Errorf("revert payload too short: %d bytes", len(data))
	}
	for name, e := range parsed.Errors {
		if !bytes.Equal(e.ID[:4], data[:4]) {
			continue
		}
		args, err := e.Inputs.Unpack(data[4:])
		if err != nil {
			return "", nil, fmt.Errorf("unpack %s: %w", name, err)
		}
		return name, args, nil
	}
	return "", nil, fmt.Errorf("unknown selector %x", data[:4])
}

// VisitTopic is topic0 of every Visit log.
func VisitTopic() common.Hash {
	return parsed.Events[EventVisit].ID
}

// EncodeVisitLog renders Visit(sender, message) as a log emitted by contract.
// The indexed sender becomes topic1; the message is ABI-encoded into data.
func EncodeVisitLog(contract, sender common.Address, message string) (*types.Log, error) {
	ev := parsed.Events[EventVisit]
	data, err := ev.Inputs.NonIndexed().Pack(message)
	if err != nil {
		return nil, fmt.Errorf("pack visit data: %w", err)
	}
	return &types.Log{
		Address: contract,
		Topics:  []common.Hash{ev.ID, common.BytesToHash(sender.Bytes())},
		Data:    data,
	}, nil
}

// DecodeVisitLog is the inverse of EncodeVisitLog.
func DecodeVisitLog(log *types.Log) (common.Address, string, error) {
	ev := parsed.Events[EventVisit]
	if log == nil || len(log.Topics) != 2 || log.Topics[0] != ev.ID {
		return common.Address{}, "", fmt.Errorf("not a %s log", EventVisit)
	}
	values, err := ev.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return common.Address{}, "", fmt.Errorf("unpack visit data: %w", err)
	}
	message, ok := values[0].(string)
	if !ok {
		return common.Address{}, "", fmt.Errorf("unexpected message type %T", values[0])
	}
	return common.BytesToAddress(log.Topics[1].Bytes()), message, nil
}

func toBig(v *uint256.Int) any {
	if v == nil {
		return new(uint256.Int).ToBig()
	}
	return v.ToBig()
}
