package domain

import (
	"context"
	"time"
)

// BookCache caches order-book snapshots for fast reads and WebSocket fanout.
type BookCache interface {
	SetSnapshot(ctx context.Context, snap BookSnapshot) error
	GetSnapshot(ctx context.Context, marketID string, outcome Outcome) (BookSnapshot, error)
}

// PriceCache caches the latest mid price per (market, outcome).
type PriceCache interface {
	SetPrice(ctx context.Context, marketID string, outcome Outcome, priceBps int64, ts time.Time) error
	GetPrice(ctx context.Context, marketID string, outcome Outcome) (int64, time.Time, error)
}

// SignalBus is a lightweight publish/subscribe fabric for engine events.
// Payloads are opaque bytes; the service layer publishes JSON.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter bounds how often a key (typically a trader address) may perform
// an action inside a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
