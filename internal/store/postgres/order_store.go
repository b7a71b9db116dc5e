package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predictd/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates an OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderSelectCols = `id, market_id, trader, side, outcome,
	price, quantity, filled, cancelled, seq, created_at`

// Create inserts a new order.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			id, market_id, trader, side, outcome,
			price, quantity, filled, cancelled, seq, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.MarketID, o.Trader, string(o.Side), string(o.Outcome),
		o.Price, o.Quantity, o.Filled, o.Cancelled, int64(o.Seq), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// Update refreshes the mutable fields of an order (filled, cancelled).
func (s *OrderStore) Update(ctx context.Context, o domain.Order) error {
	const query = `
		UPDATE orders SET filled = $1, cancelled = $2, updated_at = NOW()
		WHERE market_id = $3 AND id = $4`

	tag, err := s.pool.Exec(ctx, query, o.Filled, o.Cancelled, o.MarketID, o.ID)
	if err != nil {
		return fmt.Errorf("postgres: update order %s: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID returns one order, or domain.ErrNotFound.
func (s *OrderStore) GetByID(ctx context.Context, marketID, id string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE market_id = $1 AND id = $2`,
		marketID, id)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// ListByMarket returns a market's orders, oldest first.
func (s *OrderStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Order, error) {
	return s.list(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE market_id = $1 ORDER BY seq ASC LIMIT $2 OFFSET $3`,
		marketID, opts.Limit, opts.Offset)
}

// ListByTrader returns a trader's orders across markets, newest first.
func (s *OrderStore) ListByTrader(ctx context.Context, trader string, opts domain.ListOpts) ([]domain.Order, error) {
	return s.list(ctx,
		`SELECT `+orderSelectCols+` FROM orders
		 WHERE trader = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		trader, opts.Limit, opts.Offset)
}

func (s *OrderStore) list(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(scanner interface{ Scan(dest ...any) error }) (domain.Order, error) {
	var o domain.Order
	var side, outcome string
	var seq int64

	err := scanner.Scan(
		&o.ID, &o.MarketID, &o.Trader, &side, &outcome,
		&o.Price, &o.Quantity, &o.Filled, &o.Cancelled, &seq, &o.CreatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	o.Side = domain.Side(side)
	o.Outcome = domain.Outcome(outcome)
	o.Seq = uint64(seq)
	return o, nil
}
