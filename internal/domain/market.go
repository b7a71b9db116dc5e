package domain

import "time"

// Price constants. Prices are integers in basis points of full value, so
// MaxPriceBps means a certain outcome (100%) and NeutralPriceBps is the
// default mid when an order book is one-sided or empty.
const (
	MaxPriceBps     int64 = 10000
	NeutralPriceBps int64 = 5000
)

// Market represents a single binary-outcome prediction market.
type Market struct {
	ID         string
	Question   string
	QuestionID string // oracle question binding
	Deadline   time.Time
	FeeRateBps int64

	YesVolume   int64 // cumulative matched size on the yes channel
	NoVolume    int64 // cumulative matched size on the no channel
	FeesAccrued int64

	Resolved   bool
	Outcome    bool // winning channel once resolved; true means yes
	ResolvedAt *time.Time

	CreatedAt time.Time
}

// Open reports whether the market still accepts orders at the given time.
func (m Market) Open(at time.Time) bool {
	return !m.Resolved && at.Before(m.Deadline)
}

// WinningOutcome returns the outcome channel that pays out. Only meaningful
// once Resolved is true.
func (m Market) WinningOutcome() Outcome {
	if m.Outcome {
		return OutcomeYes
	}
	return OutcomeNo
}
