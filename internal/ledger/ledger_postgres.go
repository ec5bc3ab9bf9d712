package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"visitorbook/pkg/domain"
	"visitorbook/pkg/platform/sentinel"
	"visitorbook/pkg/platform/tx"
)

// PostgresLedger persists balances in PostgreSQL. Inside a caller's
// transaction each movement runs under a savepoint so a failed movement
// leaves the outer transaction usable.
type PostgresLedger struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed ledger.
func NewPostgres(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

func (l *PostgresLedger) BalanceOf(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	return balanceOf(ctx, tx.Conn(ctx, l.db), addr)
}

func (l *PostgresLedger) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	return l.atomically(ctx, "ledger_transfer", func(conn tx.DBTX) error {
		res, err := conn.ExecContext(ctx, `
			UPDATE accounts SET balance = balance - $2::numeric
			WHERE address = $1 AND balance >= $2::numeric
		`, from.Bytes(), domain.FormatAmount(amount))
		if err != nil {
			return fmt.Errorf("debit %s: %w", from.Hex(), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("debit rows affected: %w", err)
		}
		if n == 0 && !amount.IsZero() {
			return fmt.Errorf("debit %s: %w", from.Hex(), sentinel.ErrInsufficientFunds)
		}
		return credit(ctx, conn, to, amount)
	})
}

func (l *PostgresLedger) Mint(ctx context.Context, to common.Address, amount *uint256.Int) error {
	return l.atomically(ctx, "ledger_mint", func(conn tx.DBTX) error {
		return credit(ctx, conn, to, amount)
	})
}

// atomically runs fn in its own transaction, or under a savepoint of the
// transaction already carried by ctx.
func (l *PostgresLedger) atomically(ctx context.Context, name string, fn func(conn tx.DBTX) error) error {
	if sqlTx, ok := tx.From(ctx); ok {
		if _, err := sqlTx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
			return fmt.Errorf("savepoint: %w", err)
		}
		if err := fn(sqlTx); err != nil {
			if _, rbErr := sqlTx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
				return errors.Join(err, fmt.Errorf("rollback to savepoint: %w", rbErr))
			}
			return err
		}
		if _, err := sqlTx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
			return fmt.Errorf("release savepoint: %w", err)
		}
		return nil
	}

	sqlTx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()
	if err := fn(sqlTx); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// credit adds amount to an account, refusing to exceed 256 bits.
func credit(ctx context.Context, conn tx.DBTX, to common.Address, amount *uint256.Int) error {
	current, err := balanceOf(ctx, conn, to)
	if err != nil {
		return err
	}
	if _, overflow := new(uint256.Int).AddOverflow(current, amount); overflow {
		return fmt.Errorf("credit %s: balance overflow", to.Hex())
	}
	_, err = conn.ExecContext(ctx, `
		INSERT INTO accounts (address, balance)
		VALUES ($1, $2::numeric)
		ON CONFLICT (address) DO UPDATE SET balance = accounts.balance + EXCLUDED.balance
	`, to.Bytes(), domain.FormatAmount(amount))
	if err != nil {
		return fmt.Errorf("credit %s: %w", to.Hex(), err)
	}
	return nil
}

func balanceOf(ctx context.Context, conn tx.DBTX, addr common.Address) (*uint256.Int, error) {
	var raw string
	err := conn.QueryRowContext(ctx, `
		SELECT balance::text FROM accounts WHERE address = $1
	`, addr.Bytes()).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return new(uint256.Int), nil
		}
		return nil, fmt.Errorf("find balance: %w", err)
	}
	bal, err := domain.ParseAmount(raw)
	if err != nil {
		return nil, fmt.Errorf("decode balance %q: %w", raw, err)
	}
	return bal, nil
}
