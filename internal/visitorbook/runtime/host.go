// Package runtime plays the execution environment around the registry. Host
// gives the registry its balance, outgoing transfers and event emission;
// Executor runs every call as one serialized unit of work, carries the value
// attached to a call into the registry's account, and hands it back when the
// registry rejects the call.
package runtime

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"visitorbook/internal/events/outbox"
	"visitorbook/internal/visitorbook/models"
	"visitorbook/pkg/requestcontext"
)

// Ledger moves native value between accounts.
type Ledger interface {
	BalanceOf(ctx context.Context, addr common.Address) (*uint256.Int, error)
	Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error
	Mint(ctx context.Context, to common.Address, amount *uint256.Int) error
}

// Host binds the registry to the account of one contract address.
type Host struct {
	contract common.Address
	ledger   Ledger
	outbox   outbox.Store
}

func NewHost(contract common.Address, ledger Ledger, events outbox.Store) *Host {
	return &Host{contract: contract, ledger: ledger, outbox: events}
}

// Balance is the value currently held by the contract account.
func (h *Host) Balance(ctx context.Context) (*uint256.Int, error) {
	return h.ledger.BalanceOf(ctx, h.contract)
}

func (h *Host) Transfer(ctx context.Context, to common.Address, amount *uint256.Int) error {
	return h.ledger.Transfer(ctx, h.contract, to, amount)
}

// Emit appends the event to the outbox in the caller's unit of work.
func (h *Host) Emit(ctx context.Context, event models.VisitEvent) error {
	entry, err := outbox.NewVisitEntry(h.contract, event, requestcontext.Now(ctx))
	if err != nil {
		return err
	}
	if err := h.outbox.Append(ctx, entry); err != nil {
		return fmt.Errorf("append visit event: %w", err)
	}
	return nil
}
