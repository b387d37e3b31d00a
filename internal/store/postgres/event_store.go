package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vktrn/marketd/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL. Appends made
// inside an order transaction commit with it, so the log records exactly the
// operations that committed.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append writes an event and fills in its assigned ID.
func (s *EventStore) Append(ctx context.Context, evt *domain.MarketEvent) error {
	var buyerArg, paidArg, sigArg *string
	if evt.Buyer != "" {
		buyerArg = &evt.Buyer
	}
	if evt.AmountPaid != "" {
		paidArg = &evt.AmountPaid
	}
	if evt.Signature != "" {
		sigArg = &evt.Signature
	}

	const query = `
		INSERT INTO events (event_type, order_id, seq, asset, asset_id, seller,
			buyer, price, amount_paid, signature, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10, $11)
		RETURNING id`

	err := db(ctx, s.pool).QueryRow(ctx, query,
		string(evt.Type), evt.OrderID, evt.Seq, evt.Asset, evt.AssetID, evt.Seller,
		buyerArg, evt.Price, paidArg, sigArg, evt.CreatedAt,
	).Scan(&evt.ID)
	if err != nil {
		return fmt.Errorf("postgres: append event %s for %s: %w", evt.Type, evt.OrderID, err)
	}
	return nil
}

const eventSelectCols = `id, event_type, order_id, seq, asset, asset_id, seller,
	buyer, price::text, amount_paid::text, signature, created_at`

func scanEventRows(rows pgx.Rows) ([]domain.MarketEvent, error) {
	var events []domain.MarketEvent
	for rows.Next() {
		var e domain.MarketEvent
		var eventType string
		var buyer, paid, sig *string

		err := rows.Scan(&e.ID, &eventType, &e.OrderID, &e.Seq, &e.Asset, &e.AssetID,
			&e.Seller, &buyer, &e.Price, &paid, &sig, &e.CreatedAt)
		if err != nil {
			return nil, err
		}

		e.Type = domain.EventType(eventType)
		if buyer != nil {
			e.Buyer = *buyer
		}
		if paid != nil {
			e.AmountPaid = *paid
		}
		if sig != nil {
			e.Signature = *sig
		}

		events = append(events, e)
	}
	return events, rows.Err()
}

// List returns events, newest first, with pagination and time filtering.
func (s *EventStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.MarketEvent, error) {
	query := `SELECT ` + eventSelectCols + ` FROM events WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	events, err := scanEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan events: %w", err)
	}
	return events, nil
}

// ListBefore returns all events past afterID created strictly before the
// cutoff, oldest first, for archival.
func (s *EventStore) ListBefore(ctx context.Context, before time.Time, afterID int64) ([]domain.MarketEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventSelectCols+` FROM events WHERE created_at < $1 AND id > $2 ORDER BY id`,
		before, afterID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events before %v: %w", before, err)
	}
	defer rows.Close()

	events, err := scanEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan events before %v: %w", before, err)
	}
	return events, nil
}

// Compile-time interface check.
var _ domain.EventStore = (*EventStore)(nil)
