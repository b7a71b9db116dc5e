package domain

import "time"

// Trade is a single match execution between a taker and a resting maker
// order. The execution price is always the maker's limit price.
type Trade struct {
	ID           string
	MarketID     string
	Outcome      Outcome
	TakerOrderID string
	MakerOrderID string
	Buyer        string
	Seller       string
	Price        int64 // maker price in basis points
	Quantity     int64
	Fee          int64 // taken out of the seller's proceeds
	ExecutedAt   time.Time
}

// Notional returns the value that changed hands, before the fee.
func (t Trade) Notional() int64 {
	return t.Quantity * t.Price / MaxPriceBps
}
