package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/predictd/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes.
// The mid price for each outcome channel is stored at
// "price:{marketID}:{outcome}" with fields "price" (basis points) and "ts"
// (Unix nanosecond timestamp).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(marketID string, outcome domain.Outcome) string {
	return "price:" + marketID + ":" + string(outcome)
}

// SetPrice stores the latest mid price for an outcome channel.
func (pc *PriceCache) SetPrice(ctx context.Context, marketID string, outcome domain.Outcome, priceBps int64, ts time.Time) error {
	key := priceKey(marketID, outcome)
	fields := map[string]interface{}{
		"price": strconv.FormatInt(priceBps, 10),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s/%s: %w", marketID, outcome, err)
	}
	return nil
}

// GetPrice retrieves the latest mid price for an outcome channel.
// It returns domain.ErrNotFound when no price has been written.
func (pc *PriceCache) GetPrice(ctx context.Context, marketID string, outcome domain.Outcome) (int64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(marketID, outcome)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s/%s: %w", marketID, outcome, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	price, err := strconv.ParseInt(priceStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse price %s/%s: %w", marketID, outcome, err)
	}

	var ts time.Time
	if tsStr, ok := vals["ts"]; ok {
		if tsNano, err := strconv.ParseInt(tsStr, 10, 64); err == nil {
			ts = time.Unix(0, tsNano)
		}
	}

	return price, ts, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
