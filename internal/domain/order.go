package domain

import "time"

// Side indicates whether this is a buy or sell.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Outcome is one of the two mutually exclusive resolution channels of a
// binary market.
type Outcome string

const (
	OutcomeYes Outcome = "yes"
	OutcomeNo  Outcome = "no"
)

// Valid reports whether o is a known outcome channel.
func (o Outcome) Valid() bool {
	return o == OutcomeYes || o == OutcomeNo
}

// Opposite returns the other outcome channel.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

// Order is a limit order resting on or matched against a market's book.
// Orders are never deleted; fills only ever increase and a cancelled order
// stays cancelled.
type Order struct {
	ID        string
	MarketID  string
	Trader    string
	Side      Side
	Outcome   Outcome
	Price     int64 // limit price in basis points, [1, MaxPriceBps]
	Quantity  int64
	Filled    int64
	Cancelled bool
	Seq       uint64 // per-market arrival sequence, breaks price ties
	CreatedAt time.Time
}

// Remaining returns the unfilled quantity.
func (o Order) Remaining() int64 {
	return o.Quantity - o.Filled
}

// Active reports whether the order can still rest on the book.
func (o Order) Active() bool {
	return !o.Cancelled && o.Filled < o.Quantity
}

// EscrowFor returns the deposit a resting order of the given shape locks up.
// A buy locks its cost at the limit price; a sell locks the full quantity,
// which later collateralizes the opposite-outcome claim minted for the
// seller on every fill.
func EscrowFor(side Side, price, quantity int64) int64 {
	if side == SideBuy {
		return quantity * price / MaxPriceBps
	}
	return quantity
}
