package tx

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	dErrors "visitorbook/pkg/domain-errors"
)

// Runner serializes state-changing calls. RunInTx gives fn exclusive access to
// the guarded state; RunReadOnly gives fn a view that never observes a
// half-applied RunInTx.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	RunReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}

// defaultTxTimeout bounds how long a call may wait for and hold the lock.
const defaultTxTimeout = 5 * time.Second

// LockRunner guards in-memory state with a single process-wide lock. Writes
// registered with OnRollback are undone when fn fails, so a failed call leaves
// no partial state behind.
type LockRunner struct {
	mu      sync.RWMutex
	timeout time.Duration
}

// NewLockRunner returns a LockRunner; a zero timeout uses the default.
func NewLockRunner(timeout time.Duration) *LockRunner {
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	return &LockRunner{timeout: timeout}
}

func (r *LockRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	j := &journal{}
	if err := fn(context.WithValue(ctx, journalKey{}, j)); err != nil {
		j.rollback()
		return err
	}
	return nil
}

func (r *LockRunner) RunReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "read aborted: context cancelled")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fn(ctx)
}

func (r *LockRunner) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

// PostgresRunner runs each call in a transaction that first takes a
// transaction-scoped advisory lock, so every replica sharing the database
// executes calls one at a time.
type PostgresRunner struct {
	db      *sql.DB
	lockKey int64
}

// NewPostgresRunner returns a runner serializing on the given advisory lock key.
func NewPostgresRunner(db *sql.DB, lockKey int64) *PostgresRunner {
	return &PostgresRunner{db: db, lockKey: lockKey}
}

func (r *PostgresRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := From(ctx); ok {
		return fn(ctx)
	}
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "begin transaction")
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if _, err := sqlTx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, r.lockKey); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "acquire advisory lock")
	}
	if err := fn(WithTx(ctx, sqlTx)); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return dErrors.Wrap(fmt.Errorf("commit: %w", err), dErrors.CodeInternal, "commit transaction")
	}
	return nil
}

// RunReadOnly reads committed state; Postgres isolation already hides
// in-flight transactions.
func (r *PostgresRunner) RunReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
