package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predictd/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// InsertBatch writes a batch of trades in one round trip.
func (s *TradeStore) InsertBatch(ctx context.Context, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO trades (
			id, market_id, outcome, taker_order_id, maker_order_id,
			buyer, seller, price, quantity, fee, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`

	for _, t := range trades {
		batch.Queue(query,
			t.ID, t.MarketID, string(t.Outcome), t.TakerOrderID, t.MakerOrderID,
			t.Buyer, t.Seller, t.Price, t.Quantity, t.Fee, t.ExecutedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range trades {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert trade batch: %w", err)
		}
	}
	return nil
}

// ListByMarket returns a market's trades, newest first.
func (s *TradeStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, market_id, outcome, taker_order_id, maker_order_id,
			buyer, seller, price, quantity, fee, executed_at
		 FROM trades WHERE market_id = $1
		 ORDER BY executed_at DESC LIMIT $2 OFFSET $3`,
		marketID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades for %s: %w", marketID, err)
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var outcome string
		err := rows.Scan(
			&t.ID, &t.MarketID, &outcome, &t.TakerOrderID, &t.MakerOrderID,
			&t.Buyer, &t.Seller, &t.Price, &t.Quantity, &t.Fee, &t.ExecutedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		t.Outcome = domain.Outcome(outcome)
		out = append(out, t)
	}
	return out, rows.Err()
}
