package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vktrn/marketd/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL. Open orders live
// in sale_orders; every order ever created has a row in order_history that
// is updated, never deleted, when the order closes.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// WithTx runs fn inside a single transaction joined by every store call made
// with the context passed to fn.
func (s *OrderStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, s.pool, fn)
}

// NextSeq reserves the next creation sequence number.
func (s *OrderStore) NextSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := db(ctx, s.pool).QueryRow(ctx, `SELECT nextval('order_creation_seq')`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("postgres: next order sequence: %w", err)
	}
	return seq, nil
}

// Insert records a new open order in the live registry and the history.
func (s *OrderStore) Insert(ctx context.Context, o domain.SaleOrder) error {
	q := db(ctx, s.pool)

	const liveQuery = `
		INSERT INTO sale_orders (id, seq, asset, asset_id, seller, price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7)`

	if _, err := q.Exec(ctx, liveQuery,
		o.ID, o.Seq, o.Asset, o.AssetID, o.Seller, o.Price.String(), o.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: insert order %s: %w", o.ID, err)
	}

	const histQuery = `
		INSERT INTO order_history (id, seq, asset, asset_id, seller, price, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8)`

	if _, err := q.Exec(ctx, histQuery,
		o.ID, o.Seq, o.Asset, o.AssetID, o.Seller, o.Price.String(),
		string(domain.OrderStatusOpen), o.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: insert order history %s: %w", o.ID, err)
	}

	return nil
}

const openSelectCols = `id, seq, asset, asset_id, seller, price::text, created_at`

func scanOpenOrder(row pgx.Row) (domain.SaleOrder, error) {
	var o domain.SaleOrder
	var priceStr string

	err := row.Scan(&o.ID, &o.Seq, &o.Asset, &o.AssetID, &o.Seller, &priceStr, &o.CreatedAt)
	if err != nil {
		return domain.SaleOrder{}, err
	}

	o.Price, _ = new(big.Int).SetString(priceStr, 10)
	o.Status = domain.OrderStatusOpen
	return o, nil
}

// GetOpen returns an open order by id, or ErrUnknownOrder.
func (s *OrderStore) GetOpen(ctx context.Context, id string) (domain.SaleOrder, error) {
	row := db(ctx, s.pool).QueryRow(ctx,
		`SELECT `+openSelectCols+` FROM sale_orders WHERE id = $1`, id)

	o, err := scanOpenOrder(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.SaleOrder{}, domain.ErrUnknownOrder
		}
		return domain.SaleOrder{}, fmt.Errorf("postgres: get open order %s: %w", id, err)
	}
	return o, nil
}

// ListOpen returns all open orders ordered by creation sequence.
func (s *OrderStore) ListOpen(ctx context.Context) ([]domain.SaleOrder, error) {
	rows, err := db(ctx, s.pool).Query(ctx,
		`SELECT `+openSelectCols+` FROM sale_orders ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.SaleOrder
	for rows.Next() {
		o, err := scanOpenOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan open order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Delete removes an order from the live registry.
func (s *OrderStore) Delete(ctx context.Context, id string) error {
	tag, err := db(ctx, s.pool).Exec(ctx, `DELETE FROM sale_orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete order %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUnknownOrder
	}
	return nil
}

// CloseHistory records the terminal status of an order in the history.
func (s *OrderStore) CloseHistory(ctx context.Context, id string, status domain.OrderStatus, buyer string, amountPaid *big.Int, closedAt time.Time) error {
	var buyerArg, paidArg *string
	if buyer != "" {
		buyerArg = &buyer
	}
	if amountPaid != nil {
		v := amountPaid.String()
		paidArg = &v
	}

	const query = `
		UPDATE order_history
		SET status = $2, buyer = $3, amount_paid = $4::numeric, closed_at = $5
		WHERE id = $1 AND status = 'open'`

	tag, err := db(ctx, s.pool).Exec(ctx, query, id, string(status), buyerArg, paidArg, closedAt)
	if err != nil {
		return fmt.Errorf("postgres: close order history %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUnknownOrder
	}
	return nil
}

const histSelectCols = `id, seq, asset, asset_id, seller, buyer, price::text, status, amount_paid::text, created_at, closed_at`

func scanHistoryRows(rows pgx.Rows) ([]domain.SaleOrder, error) {
	var orders []domain.SaleOrder
	for rows.Next() {
		var o domain.SaleOrder
		var buyer, paidStr *string
		var priceStr, status string

		err := rows.Scan(&o.ID, &o.Seq, &o.Asset, &o.AssetID, &o.Seller, &buyer,
			&priceStr, &status, &paidStr, &o.CreatedAt, &o.ClosedAt)
		if err != nil {
			return nil, err
		}

		if buyer != nil {
			o.Buyer = *buyer
		}
		o.Price, _ = new(big.Int).SetString(priceStr, 10)
		if paidStr != nil {
			o.AmountPaid, _ = new(big.Int).SetString(*paidStr, 10)
		}
		o.Status = domain.OrderStatus(status)

		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *OrderStore) listHistory(ctx context.Context, where string, account string, opts domain.ListOpts) ([]domain.SaleOrder, error) {
	query := `SELECT ` + histSelectCols + ` FROM order_history WHERE ` + where + ` ORDER BY seq`
	args := []any{account}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := db(ctx, s.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list order history: %w", err)
	}
	defer rows.Close()

	orders, err := scanHistoryRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan order history: %w", err)
	}
	return orders, nil
}

// ListBoughtBy returns historical orders purchased by the given account.
func (s *OrderStore) ListBoughtBy(ctx context.Context, buyer string, opts domain.ListOpts) ([]domain.SaleOrder, error) {
	return s.listHistory(ctx, `buyer = $1 AND status = 'sold'`, buyer, opts)
}

// ListCreatedBy returns historical orders listed by the given account.
func (s *OrderStore) ListCreatedBy(ctx context.Context, seller string, opts domain.ListOpts) ([]domain.SaleOrder, error) {
	return s.listHistory(ctx, `seller = $1`, seller, opts)
}

// Compile-time interface check.
var _ domain.OrderStore = (*OrderStore)(nil)
