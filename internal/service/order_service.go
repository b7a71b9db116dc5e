package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/predictd/internal/domain"
	"github.com/alanyoungcy/predictd/internal/engine"
)

// PlaceOrder rate limits the trader, runs the order through the engine, then
// write-behinds everything the match touched: the taker order, every maker
// order it filled against, both sides' positions, the market record, and the
// trade history. Each executed trade is also published on the trade channel.
func (s *MarketService) PlaceOrder(ctx context.Context, p engine.PlaceOrderParams) (domain.Order, []domain.Trade, error) {
	addr, err := domain.NormalizeAddress(p.Trader)
	if err != nil {
		return domain.Order{}, nil, err
	}
	p.Trader = addr

	allowed, err := s.limiter.Allow(ctx, "orders:"+addr, orderRateLimit, orderRateWindow)
	if err != nil {
		return domain.Order{}, nil, fmt.Errorf("service: rate limiter: %w", err)
	}
	if !allowed {
		return domain.Order{}, nil, domain.ErrRateLimited
	}

	order, trades, err := s.engine.PlaceOrder(ctx, p)
	if err != nil {
		return domain.Order{}, nil, fmt.Errorf("service: place order: %w", err)
	}

	if storeErr := s.orders.Create(ctx, order); storeErr != nil {
		s.logger.ErrorContext(ctx, "service: persist order failed",
			slog.String("order_id", order.ID),
			slog.String("error", storeErr.Error()),
		)
	}
	s.persistFills(ctx, order.MarketID, trades)

	for _, t := range trades {
		s.publish(ctx, ChannelTrade, map[string]any{
			"event":     "trade",
			"trade_id":  t.ID,
			"market_id": t.MarketID,
			"outcome":   string(t.Outcome),
			"price":     t.Price,
			"quantity":  t.Quantity,
			"buyer":     t.Buyer,
			"seller":    t.Seller,
		})
	}

	s.auditLog(ctx, "order_placed", map[string]any{
		"order_id":  order.ID,
		"market_id": order.MarketID,
		"trader":    addr,
		"side":      string(order.Side),
		"outcome":   string(order.Outcome),
		"price":     order.Price,
		"quantity":  order.Quantity,
		"fills":     len(trades),
	})

	s.logger.InfoContext(ctx, "service: order placed",
		slog.String("order_id", order.ID),
		slog.String("market_id", order.MarketID),
		slog.String("side", string(order.Side)),
		slog.String("outcome", string(order.Outcome)),
		slog.Int64("price", order.Price),
		slog.Int64("quantity", order.Quantity),
		slog.Int("fills", len(trades)),
	)

	return order, trades, nil
}

// persistFills write-behinds the side effects of a match: updated maker
// orders, touched positions, the market's volume and fee counters, and the
// trades themselves.
func (s *MarketService) persistFills(ctx context.Context, marketID string, trades []domain.Trade) {
	if len(trades) == 0 {
		return
	}

	touched := make(map[string]struct{})
	for _, t := range trades {
		if maker, err := s.engine.Order(marketID, t.MakerOrderID); err == nil {
			if upErr := s.orders.Update(ctx, maker); upErr != nil {
				s.logger.ErrorContext(ctx, "service: persist maker order failed",
					slog.String("order_id", maker.ID),
					slog.String("error", upErr.Error()),
				)
			}
		}
		touched[t.Buyer] = struct{}{}
		touched[t.Seller] = struct{}{}
	}

	for trader := range touched {
		s.persistPosition(ctx, marketID, trader)
	}

	if m, err := s.engine.Market(marketID); err == nil {
		s.persistMarket(ctx, m)
	}

	if err := s.trades.InsertBatch(ctx, trades); err != nil {
		s.logger.ErrorContext(ctx, "service: persist trades failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}

// CancelOrder cancels an order on the caller's behalf and refunds the escrow
// behind its unfilled remainder.
func (s *MarketService) CancelOrder(ctx context.Context, marketID, orderID, caller string) (domain.Order, error) {
	addr, err := domain.NormalizeAddress(caller)
	if err != nil {
		return domain.Order{}, err
	}

	allowed, err := s.limiter.Allow(ctx, "orders:"+addr, orderRateLimit, orderRateWindow)
	if err != nil {
		return domain.Order{}, fmt.Errorf("service: rate limiter: %w", err)
	}
	if !allowed {
		return domain.Order{}, domain.ErrRateLimited
	}

	order, err := s.engine.CancelOrder(ctx, marketID, orderID, addr)
	if err != nil {
		return domain.Order{}, fmt.Errorf("service: cancel order %s: %w", orderID, err)
	}

	if storeErr := s.orders.Update(ctx, order); storeErr != nil {
		s.logger.ErrorContext(ctx, "service: persist cancel failed",
			slog.String("order_id", order.ID),
			slog.String("error", storeErr.Error()),
		)
	}

	s.auditLog(ctx, "order_cancelled", map[string]any{
		"order_id":  order.ID,
		"market_id": marketID,
		"trader":    addr,
	})

	s.logger.InfoContext(ctx, "service: order cancelled",
		slog.String("order_id", order.ID),
		slog.String("market_id", marketID),
	)

	return order, nil
}

// Order returns one order's current state from the engine.
func (s *MarketService) Order(ctx context.Context, marketID, orderID string) (domain.Order, error) {
	return s.engine.Order(marketID, orderID)
}

// TraderOrders returns a trader's orders across markets from the durable
// store, newest first.
func (s *MarketService) TraderOrders(ctx context.Context, trader string, opts domain.ListOpts) ([]domain.Order, error) {
	addr, err := domain.NormalizeAddress(trader)
	if err != nil {
		return nil, err
	}
	orders, err := s.orders.ListByTrader(ctx, addr, opts)
	if err != nil {
		return nil, fmt.Errorf("service: list orders for %s: %w", addr, err)
	}
	return orders, nil
}

// Position returns a trader's position on one market.
func (s *MarketService) Position(ctx context.Context, marketID, trader string) (domain.Position, error) {
	addr, err := domain.NormalizeAddress(trader)
	if err != nil {
		return domain.Position{}, err
	}
	return s.engine.Position(marketID, addr)
}

// TraderPositions returns all of a trader's positions from the durable store.
func (s *MarketService) TraderPositions(ctx context.Context, trader string) ([]domain.Position, error) {
	addr, err := domain.NormalizeAddress(trader)
	if err != nil {
		return nil, err
	}
	positions, err := s.positions.ListByTrader(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("service: list positions for %s: %w", addr, err)
	}
	return positions, nil
}
