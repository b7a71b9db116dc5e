// Package service orchestrates the matching engine with persistence, caching,
// rate limiting, event publication, and audit logging. The engine stays the
// in-memory source of truth; stores are the durable write-behind copy and the
// query backend for history endpoints.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/predictd/internal/domain"
	"github.com/alanyoungcy/predictd/internal/engine"
)

// Event channels published on the signal bus.
const (
	ChannelTrade      = "ch:trade"
	ChannelMarket     = "ch:market"
	ChannelResolution = "ch:resolution"
)

// Rate limit for mutating order operations per trader.
const (
	orderRateLimit  = 10
	orderRateWindow = time.Second
)

// MarketService wraps the engine with the surrounding infrastructure.
type MarketService struct {
	engine    *engine.Engine
	markets   domain.MarketStore
	orders    domain.OrderStore
	positions domain.PositionStore
	trades    domain.TradeStore
	audit     domain.AuditStore
	books     domain.BookCache
	prices    domain.PriceCache
	limiter   domain.RateLimiter
	bus       domain.SignalBus
	logger    *slog.Logger
}

// NewMarketService creates a MarketService with all required dependencies.
func NewMarketService(
	eng *engine.Engine,
	markets domain.MarketStore,
	orders domain.OrderStore,
	positions domain.PositionStore,
	trades domain.TradeStore,
	audit domain.AuditStore,
	books domain.BookCache,
	prices domain.PriceCache,
	limiter domain.RateLimiter,
	bus domain.SignalBus,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		engine:    eng,
		markets:   markets,
		orders:    orders,
		positions: positions,
		trades:    trades,
		audit:     audit,
		books:     books,
		prices:    prices,
		limiter:   limiter,
		bus:       bus,
		logger:    logger,
	}
}

// publish marshals an event and sends it on the bus. Publish failures are
// logged, never propagated: live fanout is best-effort.
func (s *MarketService) publish(ctx context.Context, channel string, event map[string]any) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "service: publish event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

// auditLog writes an audit entry, logging but not propagating failures.
func (s *MarketService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// persistMarket write-behinds a market record, logging failures.
func (s *MarketService) persistMarket(ctx context.Context, m domain.Market) {
	if err := s.markets.Upsert(ctx, m); err != nil {
		s.logger.ErrorContext(ctx, "service: persist market failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
}

// persistPosition write-behinds the current engine position for a trader.
func (s *MarketService) persistPosition(ctx context.Context, marketID, trader string) {
	pos, err := s.engine.Position(marketID, trader)
	if err != nil {
		return
	}
	if err := s.positions.Upsert(ctx, pos); err != nil {
		s.logger.ErrorContext(ctx, "service: persist position failed",
			slog.String("market_id", marketID),
			slog.String("trader", trader),
			slog.String("error", err.Error()),
		)
	}
}
