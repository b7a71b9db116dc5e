package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predictd/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Upsert inserts or refreshes a position keyed by (market, trader).
func (s *PositionStore) Upsert(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (market_id, trader, yes_units, no_units, claimed, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (market_id, trader) DO UPDATE SET
			yes_units  = EXCLUDED.yes_units,
			no_units   = EXCLUDED.no_units,
			claimed    = EXCLUDED.claimed,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		p.MarketID, p.Trader, p.YesUnits, p.NoUnits, p.Claimed)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s/%s: %w", p.MarketID, p.Trader, err)
	}
	return nil
}

// Get returns the position for (market, trader), or domain.ErrNotFound.
func (s *PositionStore) Get(ctx context.Context, marketID, trader string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT market_id, trader, yes_units, no_units, claimed
		 FROM positions WHERE market_id = $1 AND trader = $2`,
		marketID, trader)

	var p domain.Position
	err := row.Scan(&p.MarketID, &p.Trader, &p.YesUnits, &p.NoUnits, &p.Claimed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s/%s: %w", marketID, trader, err)
	}
	return p, nil
}

// ListByTrader returns all of a trader's positions.
func (s *PositionStore) ListByTrader(ctx context.Context, trader string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT market_id, trader, yes_units, no_units, claimed
		 FROM positions WHERE trader = $1 ORDER BY market_id`,
		trader)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for %s: %w", trader, err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		var p domain.Position
		if err := rows.Scan(&p.MarketID, &p.Trader, &p.YesUnits, &p.NoUnits, &p.Claimed); err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
