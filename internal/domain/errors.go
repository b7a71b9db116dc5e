package domain

import "errors"

// Validation errors: caller-fixable, detected before any state mutation.
var (
	ErrEmptyQuestion       = errors.New("question must not be empty")
	ErrInvalidDeadline     = errors.New("deadline must be in the future")
	ErrInvalidPrice        = errors.New("price out of range")
	ErrInvalidSide         = errors.New("side must be buy or sell")
	ErrInvalidOutcome      = errors.New("outcome must be yes or no")
	ErrOrderTooSmall       = errors.New("order below minimum size")
	ErrInsufficientDeposit = errors.New("deposit below required escrow")
)

// State errors: the caller acted on a stale view of the market.
var (
	ErrMarketResolved   = errors.New("market already resolved")
	ErrMarketExpired    = errors.New("market deadline passed")
	ErrMarketNotExpired = errors.New("market deadline not reached")
	ErrAlreadyResolved  = errors.New("market already resolved")
	ErrNotResolved      = errors.New("market not resolved")
	ErrAlreadyCancelled = errors.New("order already cancelled")
	ErrFullyFilled      = errors.New("order fully filled")
	ErrAlreadyClaimed   = errors.New("winnings already claimed")
	ErrNoWinningPosition = errors.New("no winning position")
)

// Authorization errors.
var (
	ErrNotOrderOwner = errors.New("caller does not own this order")
	ErrNotAdmin      = errors.New("caller is not the admin")
	ErrUnauthorized  = errors.New("unauthorized")
)

// Collaborator and infrastructure errors.
var (
	ErrNotYetAnswered    = errors.New("oracle has not answered yet")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("not found")
	ErrRateLimited       = errors.New("rate limited")
	ErrInvalidAddress    = errors.New("invalid account address")
)
