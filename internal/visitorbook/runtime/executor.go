package runtime

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"visitorbook/internal/visitorbook/models"
	dErrors "visitorbook/pkg/domain-errors"
	"visitorbook/pkg/platform/sentinel"
	"visitorbook/pkg/platform/tx"
)

// Registry is the contract logic the Executor drives.
type Registry interface {
	Initialize(ctx context.Context, caller common.Address) error
	Sign(ctx context.Context, call models.CallContext, message string) error
	TotalVisitors(ctx context.Context) (uint64, error)
	VisitorAt(ctx context.Context, index *uint256.Int) (common.Address, error)
	HasVisited(ctx context.Context, addr common.Address) (bool, error)
	Fee(ctx context.Context) (*uint256.Int, error)
	Visitors(ctx context.Context) ([]common.Address, error)
}

// Executor serializes calls through a tx.Runner. For Sign it debits the
// attached value into the contract account first, but only when the registry
// would accept the call: underpayment, a repeat visitor and an uninitialized
// registry are reported without touching the caller's balance. A call rejected
// after the debit refunds it and returns the rejection, which also rolls back
// the runner's transaction.
// A failed reward transfer is not a rejection: the registration, the event
// and the payment are committed and the error is still reported.
type Executor struct {
	registry Registry
	ledger   Ledger
	runner   tx.Runner
	contract common.Address
	logger   *slog.Logger
}

func NewExecutor(registry Registry, ledger Ledger, runner tx.Runner, contract common.Address, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry: registry,
		ledger:   ledger,
		runner:   runner,
		contract: contract,
		logger:   logger,
	}
}

// Contract is the address whose account holds registration fees.
func (e *Executor) Contract() common.Address {
	return e.contract
}

func (e *Executor) Initialize(ctx context.Context, caller common.Address) error {
	return e.runner.RunInTx(ctx, func(ctx context.Context) error {
		return e.registry.Initialize(ctx, caller)
	})
}

func (e *Executor) Sign(ctx context.Context, call models.CallContext, message string) error {
	value := call.Value
	if value == nil {
		value = new(uint256.Int)
	}
	call.Value = value

	var callErr error
	err := e.runner.RunInTx(ctx, func(ctx context.Context) error {
		carry, err := e.admits(ctx, call)
		if err != nil {
			return err
		}
		if carry {
			if err := e.carryValue(ctx, call.Caller, value); err != nil {
				return err
			}
		}
		callErr = e.registry.Sign(ctx, call, message)
		if callErr == nil || committed(callErr) {
			return nil
		}
		if !carry {
			return callErr
		}
		if err := e.refund(ctx, call.Caller, value); err != nil {
			return errors.Join(callErr, err)
		}
		return callErr
	})
	if err != nil {
		return err
	}
	return callErr
}

// admits reports whether the registry's own checks would let call through.
// When they would not, the registry is left to reject it.
func (e *Executor) admits(ctx context.Context, call models.CallContext) (bool, error) {
	fee, err := e.registry.Fee(ctx)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotInitialized) {
			return false, nil
		}
		return false, err
	}
	if call.Value.Lt(fee) {
		return false, nil
	}
	visited, err := e.registry.HasVisited(ctx, call.Caller)
	if err != nil {
		return false, err
	}
	return !visited, nil
}

func (e *Executor) carryValue(ctx context.Context, caller common.Address, value *uint256.Int) error {
	if value.IsZero() {
		return nil
	}
	if err := e.ledger.Transfer(ctx, caller, e.contract, value); err != nil {
		if errors.Is(err, sentinel.ErrInsufficientFunds) {
			return dErrors.Wrap(err, dErrors.CodeInsufficientFunds, "caller balance does not cover the attached value")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to transfer attached value")
	}
	return nil
}

func (e *Executor) refund(ctx context.Context, caller common.Address, value *uint256.Int) error {
	if value.IsZero() {
		return nil
	}
	if err := e.ledger.Transfer(ctx, e.contract, caller, value); err != nil {
		e.logger.ErrorContext(ctx, "failed to refund attached value",
			"caller", caller.Hex(),
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to refund attached value")
	}
	return nil
}

// committed reports whether a registry error leaves the call's effects in place.
func committed(err error) bool {
	var transferErr *models.TransferFailedError
	return errors.As(err, &transferErr)
}

func (e *Executor) TotalVisitors(ctx context.Context) (total uint64, err error) {
	err = e.runner.RunReadOnly(ctx, func(ctx context.Context) error {
		total, err = e.registry.TotalVisitors(ctx)
		return err
	})
	return total, err
}

func (e *Executor) VisitorAt(ctx context.Context, index *uint256.Int) (addr common.Address, err error) {
	err = e.runner.RunReadOnly(ctx, func(ctx context.Context) error {
		addr, err = e.registry.VisitorAt(ctx, index)
		return err
	})
	return addr, err
}

func (e *Executor) HasVisited(ctx context.Context, addr common.Address) (visited bool, err error) {
	err = e.runner.RunReadOnly(ctx, func(ctx context.Context) error {
		visited, err = e.registry.HasVisited(ctx, addr)
		return err
	})
	return visited, err
}

func (e *Executor) Fee(ctx context.Context) (fee *uint256.Int, err error) {
	err = e.runner.RunReadOnly(ctx, func(ctx context.Context) error {
		fee, err = e.registry.Fee(ctx)
		return err
	})
	return fee, err
}

func (e *Executor) BalanceOf(ctx context.Context, addr common.Address) (balance *uint256.Int, err error) {
	err = e.runner.RunReadOnly(ctx, func(ctx context.Context) error {
		balance, err = e.ledger.BalanceOf(ctx, addr)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read balance")
		}
		return nil
	})
	return balance, err
}

// Mint credits an account. Authorization is the caller's concern.
func (e *Executor) Mint(ctx context.Context, to common.Address, amount *uint256.Int) error {
	return e.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := e.ledger.Mint(ctx, to, amount); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to mint")
		}
		return nil
	})
}

// Snapshot captures the registry state in one read.
func (e *Executor) Snapshot(ctx context.Context) (models.Snapshot, error) {
	snap := models.Snapshot{Contract: e.contract, Fee: "0"}
	err := e.runner.RunReadOnly(ctx, func(ctx context.Context) error {
		fee, err := e.registry.Fee(ctx)
		switch {
		case err == nil:
			snap.Fee = fee.ToBig().String()
		case dErrors.HasCode(err, dErrors.CodeNotInitialized):
		default:
			return err
		}
		visitors, err := e.registry.Visitors(ctx)
		if err != nil {
			return err
		}
		snap.Visitors = visitors
		snap.TotalVisitors = uint64(len(visitors))
		return nil
	})
	if err != nil {
		return models.Snapshot{}, err
	}
	return snap, nil
}
