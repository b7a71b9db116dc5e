package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predictd/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketSelectCols = `id, question, question_id, deadline, fee_rate_bps,
	yes_volume, no_volume, fees_accrued, resolved, outcome, resolved_at, created_at`

// Upsert inserts or fully refreshes a market record.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, question, question_id, deadline, fee_rate_bps,
			yes_volume, no_volume, fees_accrued, resolved, outcome,
			resolved_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (id) DO UPDATE SET
			yes_volume   = EXCLUDED.yes_volume,
			no_volume    = EXCLUDED.no_volume,
			fees_accrued = EXCLUDED.fees_accrued,
			resolved     = EXCLUDED.resolved,
			outcome      = EXCLUDED.outcome,
			resolved_at  = EXCLUDED.resolved_at,
			updated_at   = NOW()`

	_, err := s.pool.Exec(ctx, query,
		m.ID, m.Question, m.QuestionID, m.Deadline, m.FeeRateBps,
		m.YesVolume, m.NoVolume, m.FeesAccrued, m.Resolved, m.Outcome,
		m.ResolvedAt, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.ID, err)
	}
	return nil
}

// GetByID returns one market, or domain.ErrNotFound.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketSelectCols+` FROM markets WHERE id = $1`, id)

	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// ListOpen returns unresolved markets ordered by deadline.
func (s *MarketStore) ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	return s.list(ctx,
		`SELECT `+marketSelectCols+` FROM markets
		 WHERE NOT resolved ORDER BY deadline ASC LIMIT $1 OFFSET $2`,
		opts.Limit, opts.Offset)
}

// ListExpiredUnresolved returns markets past their deadline that have not
// resolved yet; the resolution sweeper feeds on this.
func (s *MarketStore) ListExpiredUnresolved(ctx context.Context, asOf time.Time) ([]domain.Market, error) {
	return s.list(ctx,
		`SELECT `+marketSelectCols+` FROM markets
		 WHERE NOT resolved AND deadline <= $1 ORDER BY deadline ASC`, asOf)
}

// List returns all markets, newest first.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	return s.list(ctx,
		`SELECT `+marketSelectCols+` FROM markets
		 ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		opts.Limit, opts.Offset)
}

func (s *MarketStore) list(ctx context.Context, query string, args ...any) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var out []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMarket(scanner interface{ Scan(dest ...any) error }) (domain.Market, error) {
	var m domain.Market
	err := scanner.Scan(
		&m.ID, &m.Question, &m.QuestionID, &m.Deadline, &m.FeeRateBps,
		&m.YesVolume, &m.NoVolume, &m.FeesAccrued, &m.Resolved, &m.Outcome,
		&m.ResolvedAt, &m.CreatedAt,
	)
	return m, err
}
