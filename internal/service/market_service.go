package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/predictd/internal/domain"
)

// CreateMarket registers an oracle question and opens a new market. The
// creator pays the question fee through the ledger.
func (s *MarketService) CreateMarket(ctx context.Context, creator, question string, deadline time.Time) (domain.Market, error) {
	addr, err := domain.NormalizeAddress(creator)
	if err != nil {
		return domain.Market{}, err
	}

	m, err := s.engine.CreateMarket(ctx, addr, question, deadline)
	if err != nil {
		return domain.Market{}, fmt.Errorf("service: create market: %w", err)
	}

	s.persistMarket(ctx, m)

	s.publish(ctx, ChannelMarket, map[string]any{
		"event":     "market_created",
		"market_id": m.ID,
		"question":  m.Question,
		"deadline":  m.Deadline.Format(time.RFC3339),
	})
	s.auditLog(ctx, "market_created", map[string]any{
		"market_id": m.ID,
		"creator":   addr,
		"question":  m.Question,
	})

	s.logger.InfoContext(ctx, "service: market created",
		slog.String("market_id", m.ID),
		slog.String("creator", addr),
	)

	return m, nil
}

// Resolve fires the oracle-gated resolution for a market and publishes the
// outcome to subscribers.
func (s *MarketService) Resolve(ctx context.Context, marketID string) (domain.Market, error) {
	m, err := s.engine.ResolveMarket(ctx, marketID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("service: resolve market %s: %w", marketID, err)
	}

	s.persistMarket(ctx, m)

	s.publish(ctx, ChannelResolution, map[string]any{
		"event":     "market_resolved",
		"market_id": m.ID,
		"outcome":   string(m.WinningOutcome()),
	})
	s.auditLog(ctx, "market_resolved", map[string]any{
		"market_id": m.ID,
		"outcome":   string(m.WinningOutcome()),
	})

	s.logger.InfoContext(ctx, "service: market resolved",
		slog.String("market_id", m.ID),
		slog.String("outcome", string(m.WinningOutcome())),
	)

	return m, nil
}

// Claim pays out a trader's winning-channel units on a resolved market.
func (s *MarketService) Claim(ctx context.Context, marketID, trader string) (int64, error) {
	addr, err := domain.NormalizeAddress(trader)
	if err != nil {
		return 0, err
	}

	payout, err := s.engine.ClaimWinnings(ctx, marketID, addr)
	if err != nil {
		return 0, fmt.Errorf("service: claim %s/%s: %w", marketID, addr, err)
	}

	s.persistPosition(ctx, marketID, addr)
	s.auditLog(ctx, "winnings_claimed", map[string]any{
		"market_id": marketID,
		"trader":    addr,
		"payout":    payout,
	})

	s.logger.InfoContext(ctx, "service: winnings claimed",
		slog.String("market_id", marketID),
		slog.String("trader", addr),
		slog.Int64("payout", payout),
	)

	return payout, nil
}

// WithdrawFees transfers a market's accrued fees to the admin account.
func (s *MarketService) WithdrawFees(ctx context.Context, marketID, caller string) (int64, error) {
	addr, err := domain.NormalizeAddress(caller)
	if err != nil {
		return 0, err
	}

	amount, err := s.engine.WithdrawFees(ctx, marketID, addr)
	if err != nil {
		return 0, fmt.Errorf("service: withdraw fees %s: %w", marketID, err)
	}

	if m, mErr := s.engine.Market(marketID); mErr == nil {
		s.persistMarket(ctx, m)
	}
	s.auditLog(ctx, "fees_withdrawn", map[string]any{
		"market_id": marketID,
		"amount":    amount,
	})

	s.logger.InfoContext(ctx, "service: fees withdrawn",
		slog.String("market_id", marketID),
		slog.Int64("amount", amount),
	)

	return amount, nil
}

// Market returns one market's current record.
func (s *MarketService) Market(ctx context.Context, marketID string) (domain.Market, error) {
	return s.engine.Market(marketID)
}

// Markets returns all market records.
func (s *MarketService) Markets(ctx context.Context) []domain.Market {
	return s.engine.Markets()
}

// OrderBook returns the book on one outcome channel, preferring the cached
// snapshot and falling back to the live engine view.
func (s *MarketService) OrderBook(ctx context.Context, marketID string, outcome domain.Outcome) (domain.BookSnapshot, error) {
	if snap, err := s.books.GetSnapshot(ctx, marketID, outcome); err == nil {
		return snap, nil
	}
	return s.engine.OrderBook(marketID, outcome)
}

// OpenOrders returns the live resting orders behind the book, straight from
// the engine: per-order entries are never cached.
func (s *MarketService) OpenOrders(ctx context.Context, marketID string, outcome domain.Outcome) (bids, asks []domain.Order, err error) {
	return s.engine.OpenOrders(marketID, outcome)
}

// MarketPrice returns the mid price on one outcome channel, preferring the
// cache and falling back to the live engine view.
func (s *MarketService) MarketPrice(ctx context.Context, marketID string, outcome domain.Outcome) (int64, error) {
	if price, _, err := s.prices.GetPrice(ctx, marketID, outcome); err == nil {
		return price, nil
	}
	return s.engine.MarketPrice(marketID, outcome)
}

// Trades returns a market's trade history from the durable store.
func (s *MarketService) Trades(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error) {
	trades, err := s.trades.ListByMarket(ctx, marketID, opts)
	if err != nil {
		return nil, fmt.Errorf("service: list trades %s: %w", marketID, err)
	}
	return trades, nil
}
