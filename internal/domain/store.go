package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// MarketStore persists market records.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	ListOpen(ctx context.Context, opts ListOpts) ([]Market, error)
	ListExpiredUnresolved(ctx context.Context, asOf time.Time) ([]Market, error)
	List(ctx context.Context, opts ListOpts) ([]Market, error)
}

// OrderStore persists orders. Orders are never deleted, only updated as they
// fill or get cancelled.
type OrderStore interface {
	Create(ctx context.Context, order Order) error
	Update(ctx context.Context, order Order) error
	GetByID(ctx context.Context, marketID, id string) (Order, error)
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Order, error)
	ListByTrader(ctx context.Context, trader string, opts ListOpts) ([]Order, error)
}

// PositionStore persists positions keyed by (market, trader).
type PositionStore interface {
	Upsert(ctx context.Context, pos Position) error
	Get(ctx context.Context, marketID, trader string) (Position, error)
	ListByTrader(ctx context.Context, trader string) ([]Position, error)
}

// TradeStore persists match executions.
type TradeStore interface {
	InsertBatch(ctx context.Context, trades []Trade) error
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Trade, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log of mutating operations.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
