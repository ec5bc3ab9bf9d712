package store

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

// PostgresStore persists the registry in PostgreSQL. Writes join the
// transaction carried by ctx, if any.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed registry store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) InitFee(ctx context.Context, fee *uint256.Int) error {
	res, err := tx.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO registry_config (id, fee)
		VALUES (1, $1::numeric)
		ON CONFLICT (id) DO NOTHING
	`, domain.FormatAmount(fee))
	if err != nil {
		return fmt.Errorf("init fee: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("init fee rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (s *PostgresStore) Fee(ctx context.Context) (*uint256.Int, error) {
	var raw string
	err := tx.Conn(ctx, s.db).QueryRowContext(ctx, `
		SELECT fee::text FROM registry_config WHERE id = 1
	`).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find fee: %w", err)
	}
	fee, err := domain.ParseAmount(raw)
	if err != nil {
		return nil, fmt.Errorf("decode fee %q: %w", raw, err)
	}
	return fee, nil
}

// AppendVisitor assigns the next position. Callers serialize writers (the
// advisory lock taken by tx.PostgresRunner); the primary key on position
// rejects a concurrent writer that slips past.
func (s *PostgresStore) AppendVisitor(ctx context.Context, addr common.Address) error {
	res, err := tx.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO visitors (position, address)
		SELECT COALESCE(MAX(position) + 1, 0), $1 FROM visitors
		ON CONFLICT (address) DO NOTHING
	`, addr.Bytes())
	if err != nil {
		return fmt.Errorf("append visitor: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("append visitor rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) CountVisitors(ctx context.Context) (uint64, error) {
	var n int64
	if err := tx.Conn(ctx, s.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM visitors`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count visitors: %w", err)
	}
	return uint64(n), nil
}

func (s *PostgresStore) VisitorAt(ctx context.Context, index uint64) (common.Address, error) {
	if index > uint64(1<<63-1) {
		return common.Address{}, sentinel.ErrNotFound
	}
	row := tx.Conn(ctx, s.db).QueryRowContext(ctx, `
		SELECT address FROM visitors WHERE position = $1
	`, int64(index))
	addr, err := scanAddress(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.Address{}, sentinel.ErrNotFound
		}
		return common.Address{}, fmt.Errorf("find visitor: %w", err)
	}
	return addr, nil
}

func (s *PostgresStore) HasVisited(ctx context.Context, addr common.Address) (bool, error) {
	var exists bool
	err := tx.Conn(ctx, s.db).QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM visitors WHERE address = $1)
	`, addr.Bytes()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check visitor: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListVisitors(ctx context.Context) ([]common.Address, error) {
	rows, err := tx.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT address FROM visitors ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("list visitors: %w", err)
	}
	defer rows.Close()

	var out []common.Address
	for rows.Next() {
		addr, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan visitor: %w", err)
		}
		out = append(out, addr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate visitors: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAddress(row scanner) (common.Address, error) {
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		return common.Address{}, err
	}
	if len(raw) != common.AddressLength {
		return common.Address{}, fmt.Errorf("stored address has %d bytes", len(raw))
	}
	return common.BytesToAddress(raw), nil
}
