package domain

import "time"

// BookLevel is one aggregated price level of an order book side.
type BookLevel struct {
	Price    int64
	Quantity int64 // total unfilled quantity resting at this price
	Orders   int
}

// BookSnapshot is a point-in-time view of the active orders on one outcome
// channel of a market. Bids are sorted best (highest) first, asks best
// (lowest) first.
type BookSnapshot struct {
	MarketID  string
	Outcome   Outcome
	Bids      []BookLevel
	Asks      []BookLevel
	BestBid   int64 // 0 when no bids rest
	BestAsk   int64 // 0 when no asks rest
	Mid       int64 // NeutralPriceBps when either side is empty
	Timestamp time.Time
}
