// Package ledger abstracts the value-movement primitive the engine settles
// through. The engine only ever computes amounts and recipients; moving value
// between accounts is the ledger's job.
package ledger

import "context"

// Ledger moves value between named accounts. Implementations must reject
// transfers the source account cannot cover and must never create or destroy
// value.
type Ledger interface {
	// Transfer moves amount from one account to another. A zero amount is a
	// no-op. It returns domain.ErrInsufficientFunds when the source balance
	// is too low.
	Transfer(ctx context.Context, from, to string, amount int64) error

	// Balance returns the current balance of an account. Unknown accounts
	// have a zero balance.
	Balance(ctx context.Context, account string) (int64, error)
}
