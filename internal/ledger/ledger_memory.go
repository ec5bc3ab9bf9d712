// Package ledger keeps the native-asset balances of accounts: callers, the
// registry contract itself, and anyone the owner mints to.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"visitorbook/pkg/platform/sentinel"
	"visitorbook/pkg/platform/tx"
)

// InMemoryLedger keeps balances in process memory. Movements made inside a
// tx.LockRunner call are reverted if that call fails.
type InMemoryLedger struct {
	mu       sync.RWMutex
	balances map[common.Address]*uint256.Int
}

func NewInMemory() *InMemoryLedger {
	return &InMemoryLedger{balances: make(map[common.Address]*uint256.Int)}
}

func (l *InMemoryLedger) BalanceOf(_ context.Context, addr common.Address) (*uint256.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balance(addr).Clone(), nil
}

// Transfer moves amount from one account to another, or fails with
// sentinel.ErrInsufficientFunds leaving both untouched.
func (l *InMemoryLedger) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	src := l.balance(from)
	if src.Lt(amount) {
		return fmt.Errorf("debit %s: %w", from.Hex(), sentinel.ErrInsufficientFunds)
	}
	if from == to {
		return nil
	}
	dst := l.balance(to)
	credited, overflow := new(uint256.Int).AddOverflow(dst, amount)
	if overflow {
		return fmt.Errorf("credit %s: balance overflow", to.Hex())
	}
	l.balances[from] = new(uint256.Int).Sub(src, amount)
	l.balances[to] = credited
	tx.OnRollback(ctx, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.balances[from] = src
		l.balances[to] = dst
	})
	return nil
}

// Mint credits amount to an account out of thin air.
func (l *InMemoryLedger) Mint(ctx context.Context, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev := l.balance(to)
	credited, overflow := new(uint256.Int).AddOverflow(prev, amount)
	if overflow {
		return fmt.Errorf("mint %s: balance overflow", to.Hex())
	}
	l.balances[to] = credited
	tx.OnRollback(ctx, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.balances[to] = prev
	})
	return nil
}

func (l *InMemoryLedger) balance(addr common.Address) *uint256.Int {
	if b, ok := l.balances[addr]; ok {
		return b
	}
	return new(uint256.Int)
}
