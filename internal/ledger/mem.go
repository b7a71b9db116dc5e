package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/predictd/internal/domain"
)

// MemLedger is an in-process Ledger keeping account balances in a map. It is
// the default value host for a self-contained deployment and for tests.
type MemLedger struct {
	mu       sync.Mutex
	balances map[string]int64
}

// NewMemLedger creates an empty MemLedger.
func NewMemLedger() *MemLedger {
	return &MemLedger{balances: make(map[string]int64)}
}

// Mint credits an account out of thin air. It exists so deployments and tests
// can fund trader accounts; the engine itself never mints.
func (l *MemLedger) Mint(account string, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] += amount
}

// Transfer implements Ledger.
func (l *MemLedger) Transfer(_ context.Context, from, to string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("ledger: negative transfer amount %d", amount)
	}
	if amount == 0 || from == to {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[from] < amount {
		return fmt.Errorf("ledger: transfer %d from %s: %w", amount, from, domain.ErrInsufficientFunds)
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

// Balance implements Ledger.
func (l *MemLedger) Balance(_ context.Context, account string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account], nil
}
