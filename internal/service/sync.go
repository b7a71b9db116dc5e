package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/predictd/internal/domain"
)

// SyncBooks writes the live order books of every unresolved market to the
// book cache and refreshes the cached mid prices. The snapshot publisher job
// calls this on a ticker.
func (s *MarketService) SyncBooks(ctx context.Context) error {
	now := time.Now().UTC()
	for _, m := range s.engine.Markets() {
		if m.Resolved {
			continue
		}
		for _, outcome := range []domain.Outcome{domain.OutcomeYes, domain.OutcomeNo} {
			snap, err := s.engine.OrderBook(m.ID, outcome)
			if err != nil {
				continue
			}
			if err := s.books.SetSnapshot(ctx, snap); err != nil {
				s.logger.WarnContext(ctx, "service: book snapshot cache failed",
					slog.String("market_id", m.ID),
					slog.String("outcome", string(outcome)),
					slog.String("error", err.Error()),
				)
				continue
			}
			if err := s.prices.SetPrice(ctx, m.ID, outcome, snap.Mid, now); err != nil {
				s.logger.WarnContext(ctx, "service: price cache failed",
					slog.String("market_id", m.ID),
					slog.String("outcome", string(outcome)),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	return nil
}

// SweepExpired attempts resolution on every market whose deadline has passed.
// Markets whose oracle question is still unanswered are left for the next
// sweep; everything else resolves through the normal path, with events and
// persistence included.
func (s *MarketService) SweepExpired(ctx context.Context) {
	now := time.Now().UTC()
	for _, m := range s.engine.Markets() {
		if m.Resolved || m.Deadline.After(now) {
			continue
		}
		if _, err := s.Resolve(ctx, m.ID); err != nil {
			if errors.Is(err, domain.ErrNotYetAnswered) {
				continue
			}
			s.logger.WarnContext(ctx, "service: sweep resolution failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
