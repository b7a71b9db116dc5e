package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/predictd/internal/domain"
)

// BookCache implements domain.BookCache using Redis sorted sets and hashes,
// one set of keys per (market, outcome) channel.
//
// Key schema:
//
//	book:{marketID}:{outcome}:bids  - sorted set of bid prices (score = price bps)
//	book:{marketID}:{outcome}:asks  - sorted set of ask prices (score = price bps)
//	book:{marketID}:{outcome}:bidq  - hash mapping price -> "quantity:orders"
//	book:{marketID}:{outcome}:askq  - hash mapping price -> "quantity:orders"
//	book:{marketID}:{outcome}:meta  - hash with "bid", "ask", "mid", "ts" fields
type BookCache struct {
	rdb *redis.Client
}

// NewBookCache creates a BookCache backed by the given Client.
func NewBookCache(c *Client) *BookCache {
	return &BookCache{rdb: c.Underlying()}
}

func bookKey(marketID string, outcome domain.Outcome, suffix string) string {
	return "book:" + marketID + ":" + string(outcome) + ":" + suffix
}

func encodeLevel(lvl domain.BookLevel) string {
	return strconv.FormatInt(lvl.Quantity, 10) + ":" + strconv.Itoa(lvl.Orders)
}

func decodeLevel(priceStr, val string) (domain.BookLevel, error) {
	price, err := strconv.ParseInt(priceStr, 10, 64)
	if err != nil {
		return domain.BookLevel{}, err
	}
	qtyStr, ordStr, _ := strings.Cut(val, ":")
	qty, err := strconv.ParseInt(qtyStr, 10, 64)
	if err != nil {
		return domain.BookLevel{}, err
	}
	orders, _ := strconv.Atoi(ordStr)
	return domain.BookLevel{Price: price, Quantity: qty, Orders: orders}, nil
}

// SetSnapshot atomically replaces the cached snapshot for one outcome channel.
func (bc *BookCache) SetSnapshot(ctx context.Context, snap domain.BookSnapshot) error {
	bidsKey := bookKey(snap.MarketID, snap.Outcome, "bids")
	asksKey := bookKey(snap.MarketID, snap.Outcome, "asks")
	bidqKey := bookKey(snap.MarketID, snap.Outcome, "bidq")
	askqKey := bookKey(snap.MarketID, snap.Outcome, "askq")
	metaKey := bookKey(snap.MarketID, snap.Outcome, "meta")

	pipe := bc.rdb.TxPipeline()
	pipe.Del(ctx, bidsKey, asksKey, bidqKey, askqKey, metaKey)

	for _, lvl := range snap.Bids {
		priceStr := strconv.FormatInt(lvl.Price, 10)
		pipe.ZAdd(ctx, bidsKey, redis.Z{Score: float64(lvl.Price), Member: priceStr})
		pipe.HSet(ctx, bidqKey, priceStr, encodeLevel(lvl))
	}
	for _, lvl := range snap.Asks {
		priceStr := strconv.FormatInt(lvl.Price, 10)
		pipe.ZAdd(ctx, asksKey, redis.Z{Score: float64(lvl.Price), Member: priceStr})
		pipe.HSet(ctx, askqKey, priceStr, encodeLevel(lvl))
	}

	pipe.HSet(ctx, metaKey, map[string]interface{}{
		"bid": strconv.FormatInt(snap.BestBid, 10),
		"ask": strconv.FormatInt(snap.BestAsk, 10),
		"mid": strconv.FormatInt(snap.Mid, 10),
		"ts":  strconv.FormatInt(snap.Timestamp.UnixNano(), 10),
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set book snapshot %s/%s: %w", snap.MarketID, snap.Outcome, err)
	}
	return nil
}

// GetSnapshot reconstructs a BookSnapshot for one outcome channel.
// It returns domain.ErrNotFound if no snapshot has been written.
func (bc *BookCache) GetSnapshot(ctx context.Context, marketID string, outcome domain.Outcome) (domain.BookSnapshot, error) {
	bidsKey := bookKey(marketID, outcome, "bids")
	asksKey := bookKey(marketID, outcome, "asks")
	bidqKey := bookKey(marketID, outcome, "bidq")
	askqKey := bookKey(marketID, outcome, "askq")
	metaKey := bookKey(marketID, outcome, "meta")

	pipe := bc.rdb.Pipeline()
	bidsCmd := pipe.ZRevRange(ctx, bidsKey, 0, -1)
	asksCmd := pipe.ZRange(ctx, asksKey, 0, -1)
	bidqCmd := pipe.HGetAll(ctx, bidqKey)
	askqCmd := pipe.HGetAll(ctx, askqKey)
	metaCmd := pipe.HGetAll(ctx, metaKey)

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return domain.BookSnapshot{}, fmt.Errorf("redis: get book snapshot %s/%s: %w", marketID, outcome, err)
	}

	meta, _ := metaCmd.Result()
	if len(meta) == 0 {
		return domain.BookSnapshot{}, domain.ErrNotFound
	}

	snap := domain.BookSnapshot{MarketID: marketID, Outcome: outcome}
	snap.BestBid, _ = strconv.ParseInt(meta["bid"], 10, 64)
	snap.BestAsk, _ = strconv.ParseInt(meta["ask"], 10, 64)
	snap.Mid, _ = strconv.ParseInt(meta["mid"], 10, 64)
	if tsNano, err := strconv.ParseInt(meta["ts"], 10, 64); err == nil {
		snap.Timestamp = time.Unix(0, tsNano)
	}

	bidQtys, _ := bidqCmd.Result()
	bidPrices, _ := bidsCmd.Result()
	snap.Bids = make([]domain.BookLevel, 0, len(bidPrices))
	for _, priceStr := range bidPrices {
		lvl, err := decodeLevel(priceStr, bidQtys[priceStr])
		if err != nil {
			continue
		}
		snap.Bids = append(snap.Bids, lvl)
	}

	askQtys, _ := askqCmd.Result()
	askPrices, _ := asksCmd.Result()
	snap.Asks = make([]domain.BookLevel, 0, len(askPrices))
	for _, priceStr := range askPrices {
		lvl, err := decodeLevel(priceStr, askQtys[priceStr])
		if err != nil {
			continue
		}
		snap.Asks = append(snap.Asks, lvl)
	}

	return snap, nil
}

// Compile-time interface check.
var _ domain.BookCache = (*BookCache)(nil)
