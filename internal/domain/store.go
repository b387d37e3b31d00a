package domain

import (
	"context"
	"math/big"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OrderStore persists sale orders: a live registry of open orders plus an
// append-only history of every order ever created. Mutating methods called
// inside a WithTx callback join that transaction.
type OrderStore interface {
	// WithTx runs fn inside a single transaction. All store calls made with
	// the context passed to fn commit or roll back together.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	// NextSeq reserves the next creation sequence number.
	NextSeq(ctx context.Context) (int64, error)

	// Insert records a new open order in the live registry and the history.
	// Returns ErrAlreadyExists if the id is already present.
	Insert(ctx context.Context, order SaleOrder) error

	// GetOpen returns an open order by id, or ErrUnknownOrder.
	GetOpen(ctx context.Context, id string) (SaleOrder, error)

	// ListOpen returns all open orders ordered by creation sequence.
	ListOpen(ctx context.Context) ([]SaleOrder, error)

	// Delete removes an order from the live registry (history is untouched).
	Delete(ctx context.Context, id string) error

	// CloseHistory records the terminal status of an order in the history.
	// Buyer and amountPaid are only set for sales.
	CloseHistory(ctx context.Context, id string, status OrderStatus, buyer string, amountPaid *big.Int, closedAt time.Time) error

	// ListBoughtBy returns historical orders purchased by the given account.
	ListBoughtBy(ctx context.Context, buyer string, opts ListOpts) ([]SaleOrder, error)

	// ListCreatedBy returns historical orders listed by the given account.
	ListCreatedBy(ctx context.Context, seller string, opts ListOpts) ([]SaleOrder, error)
}

// Ledger tracks native-unit account balances and settles payments. Move and
// Deposit called inside an OrderStore.WithTx callback join that transaction,
// which is how purchase settlement commits atomically with order state.
type Ledger interface {
	// Move transfers amount from one account to another. Returns
	// ErrInsufficientFunds when the source balance is too low.
	Move(ctx context.Context, from, to string, amount *big.Int) error

	// Deposit credits an account, creating it if necessary.
	Deposit(ctx context.Context, account string, amount *big.Int) error

	// Balance returns the current balance of an account (zero if unknown).
	Balance(ctx context.Context, account string) (*big.Int, error)
}

// EventStore persists the append-only marketplace event log.
type EventStore interface {
	// Append writes an event and fills in its assigned ID.
	Append(ctx context.Context, evt *MarketEvent) error

	// List returns events, newest first.
	List(ctx context.Context, opts ListOpts) ([]MarketEvent, error)

	// ListBefore returns all events with an ID greater than afterID that
	// were created strictly before the cutoff, oldest first. The archiver
	// passes its high-water mark as afterID so each event is exported once.
	ListBefore(ctx context.Context, before time.Time, afterID int64) ([]MarketEvent, error)
}

// AssetRegistry is the external custody collaborator. Transfer fails
// atomically when from does not own the asset or has not authorized the
// marketplace.
type AssetRegistry interface {
	// Transfer moves custody of (asset, assetID) from one account to another.
	Transfer(ctx context.Context, asset, assetID, from, to string) error

	// OwnerOf returns the current custodian of (asset, assetID).
	OwnerOf(ctx context.Context, asset, assetID string) (string, error)
}
