package domain

// Position is the net exposure a trader has accumulated on one market. Units
// are credited by matching and consumed exactly once by a claim.
type Position struct {
	MarketID string
	Trader   string
	YesUnits int64
	NoUnits  int64
	Claimed  bool
}

// Credit adds units to the given outcome channel.
func (p *Position) Credit(o Outcome, qty int64) {
	if o == OutcomeYes {
		p.YesUnits += qty
	} else {
		p.NoUnits += qty
	}
}

// Units returns the balance on the given outcome channel.
func (p Position) Units(o Outcome) int64 {
	if o == OutcomeYes {
		return p.YesUnits
	}
	return p.NoUnits
}

// Empty reports whether the position holds no units on either channel.
func (p Position) Empty() bool {
	return p.YesUnits == 0 && p.NoUnits == 0
}
