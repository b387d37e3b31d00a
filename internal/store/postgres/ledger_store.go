package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vktrn/marketd/internal/domain"
)

// LedgerStore implements domain.Ledger using PostgreSQL. Balances are
// NUMERIC(78,0) native units with a non-negative check constraint, so an
// overdraft is rejected by the database even under concurrent writers.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Move transfers amount from one account to another. It joins the
// transaction in ctx when one is active.
func (s *LedgerStore) Move(ctx context.Context, from, to string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("postgres: move amount must be positive")
	}
	q := db(ctx, s.pool)

	const debit = `
		UPDATE accounts SET balance = balance - $2::numeric
		WHERE address = $1 AND balance >= $2::numeric`

	tag, err := q.Exec(ctx, debit, from, amount.String())
	if err != nil {
		if isCheckViolation(err) {
			return domain.ErrInsufficientFunds
		}
		return fmt.Errorf("postgres: debit %s: %w", from, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientFunds
	}

	const credit = `
		INSERT INTO accounts (address, balance) VALUES ($1, $2::numeric)
		ON CONFLICT (address) DO UPDATE SET balance = accounts.balance + $2::numeric`

	if _, err := q.Exec(ctx, credit, to, amount.String()); err != nil {
		return fmt.Errorf("postgres: credit %s: %w", to, err)
	}
	return nil
}

// Deposit credits an account, creating it if necessary.
func (s *LedgerStore) Deposit(ctx context.Context, account string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("postgres: deposit amount must be positive")
	}

	const query = `
		INSERT INTO accounts (address, balance) VALUES ($1, $2::numeric)
		ON CONFLICT (address) DO UPDATE SET balance = accounts.balance + $2::numeric`

	if _, err := db(ctx, s.pool).Exec(ctx, query, account, amount.String()); err != nil {
		return fmt.Errorf("postgres: deposit to %s: %w", account, err)
	}
	return nil
}

// Balance returns the current balance of an account, zero if unknown.
func (s *LedgerStore) Balance(ctx context.Context, account string) (*big.Int, error) {
	var balanceStr string
	err := db(ctx, s.pool).QueryRow(ctx,
		`SELECT balance::text FROM accounts WHERE address = $1`, account,
	).Scan(&balanceStr)
	if err != nil {
		if err == pgx.ErrNoRows {
			return big.NewInt(0), nil
		}
		return nil, fmt.Errorf("postgres: balance of %s: %w", account, err)
	}

	balance, ok := new(big.Int).SetString(balanceStr, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: balance of %s: bad numeric %q", account, balanceStr)
	}
	return balance, nil
}

// Compile-time interface check.
var _ domain.Ledger = (*LedgerStore)(nil)
