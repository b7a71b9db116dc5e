// Package engine implements the continuous order-book matching engine for
// binary-outcome markets: order placement with collateral escrow, price-time
// priority matching at the maker's price, cancellation refunds, oracle-gated
// resolution, and 1:1 claim settlement.
//
// Every market is a single-writer state machine: all mutating calls on one
// market serialize through its mutex, and no call observes another call's
// partial effects. There is no shared mutable state between markets.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/predictd/internal/domain"
	"github.com/alanyoungcy/predictd/internal/ledger"
	"github.com/alanyoungcy/predictd/internal/oracle"
)

// Config carries the engine's economic parameters.
type Config struct {
	MinOrderSize  int64  // smallest accepted order quantity
	FeeRateBps    int64  // fee per matched unit, in basis points of size
	QuestionFee   int64  // forwarded to the oracle on market creation
	Admin         string // capability holder for fee withdrawal
	EscrowAccount string // ledger account holding all deposits
	OracleAccount string // ledger account receiving question fees
}

// Engine owns every market's book, orders, positions, and escrow accounting.
// Value moves through the ledger; answers come from the oracle.
type Engine struct {
	cfg    Config
	ledger ledger.Ledger
	oracle oracle.Oracle
	clock  func() time.Time

	mu      sync.RWMutex
	markets map[string]*marketState
}

// marketState bundles one market's mutable state under one mutex.
type marketState struct {
	mu        sync.Mutex
	info      domain.Market
	orders    map[string]*domain.Order
	books     map[domain.Outcome]*book
	positions map[string]*domain.Position
	seq       uint64
}

// New creates an Engine. A nil clock defaults to time.Now.
func New(cfg Config, l ledger.Ledger, o oracle.Oracle, clock func() time.Time) *Engine {
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		cfg:     cfg,
		ledger:  l,
		oracle:  o,
		clock:   clock,
		markets: make(map[string]*marketState),
	}
}

// CreateMarket registers a question with the oracle, forwarding the question
// fee from the creator, and allocates a new open market.
func (e *Engine) CreateMarket(ctx context.Context, creator, question string, deadline time.Time) (domain.Market, error) {
	if question == "" {
		return domain.Market{}, domain.ErrEmptyQuestion
	}
	now := e.clock()
	if !deadline.After(now) {
		return domain.Market{}, domain.ErrInvalidDeadline
	}

	if err := e.ledger.Transfer(ctx, creator, e.cfg.OracleAccount, e.cfg.QuestionFee); err != nil {
		return domain.Market{}, fmt.Errorf("engine: forward question fee: %w", err)
	}

	questionID, err := e.oracle.AskQuestion(ctx, question, deadline)
	if err != nil {
		// Refund the fee: the question never registered.
		_ = e.ledger.Transfer(ctx, e.cfg.OracleAccount, creator, e.cfg.QuestionFee)
		return domain.Market{}, fmt.Errorf("engine: ask question: %w", err)
	}

	m := domain.Market{
		ID:         uuid.New().String(),
		Question:   question,
		QuestionID: questionID,
		Deadline:   deadline.UTC(),
		FeeRateBps: e.cfg.FeeRateBps,
		CreatedAt:  now.UTC(),
	}

	ms := &marketState{
		info:   m,
		orders: make(map[string]*domain.Order),
		books: map[domain.Outcome]*book{
			domain.OutcomeYes: newBook(),
			domain.OutcomeNo:  newBook(),
		},
		positions: make(map[string]*domain.Position),
	}

	e.mu.Lock()
	e.markets[m.ID] = ms
	e.mu.Unlock()

	return m, nil
}

// PlaceOrderParams are the inputs to PlaceOrder.
type PlaceOrderParams struct {
	MarketID string
	Trader   string
	Side     domain.Side
	Outcome  domain.Outcome
	Price    int64 // basis points, [1, MaxPriceBps]
	Quantity int64
}

// PlaceOrder validates and records an order, escrows exactly the deposit the
// order requires at its own limit, matches it against the opposite side, and
// refunds whatever the fills saved (maker-price execution can cost a buyer
// less than its limit). It returns the stored order and the executed trades.
//
// The operation is all-or-nothing: fills are planned first, every ledger
// movement runs before any book, order, or position state changes, and a
// failed transfer unwinds the completed ones and returns the deposit.
func (e *Engine) PlaceOrder(ctx context.Context, p PlaceOrderParams) (domain.Order, []domain.Trade, error) {
	ms, err := e.state(p.MarketID)
	if err != nil {
		return domain.Order{}, nil, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := e.clock()
	switch {
	case ms.info.Resolved:
		return domain.Order{}, nil, domain.ErrMarketResolved
	case !now.Before(ms.info.Deadline):
		return domain.Order{}, nil, domain.ErrMarketExpired
	case !p.Side.Valid():
		return domain.Order{}, nil, domain.ErrInvalidSide
	case !p.Outcome.Valid():
		return domain.Order{}, nil, domain.ErrInvalidOutcome
	case p.Price < 1 || p.Price > domain.MaxPriceBps:
		return domain.Order{}, nil, domain.ErrInvalidPrice
	case p.Quantity < e.cfg.MinOrderSize:
		return domain.Order{}, nil, domain.ErrOrderTooSmall
	}

	required := domain.EscrowFor(p.Side, p.Price, p.Quantity)
	if err := e.ledger.Transfer(ctx, p.Trader, e.cfg.EscrowAccount, required); err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			return domain.Order{}, nil, domain.ErrInsufficientDeposit
		}
		return domain.Order{}, nil, fmt.Errorf("engine: escrow deposit: %w", err)
	}

	o := &domain.Order{
		ID:        uuid.New().String(),
		MarketID:  p.MarketID,
		Trader:    p.Trader,
		Side:      p.Side,
		Outcome:   p.Outcome,
		Price:     p.Price,
		Quantity:  p.Quantity,
		Seq:       ms.seq + 1,
		CreatedAt: now.UTC(),
	}

	fills := e.planFills(ms, o)

	// Refund the slice of the deposit neither consumed by fills nor backing
	// the unfilled remainder. Sells never over-deposit: matched collateral
	// stays escrowed against the opposite-outcome claim they mint.
	var refund int64
	if o.Side == domain.SideBuy {
		var spent, filled int64
		for _, f := range fills {
			spent += f.notional
			filled += f.qty
		}
		hold := domain.EscrowFor(o.Side, o.Price, o.Quantity-filled)
		refund = required - spent - hold
	}

	if err := e.settleFills(ctx, o, fills, refund, required); err != nil {
		return domain.Order{}, nil, err
	}

	ms.seq++
	ms.orders[o.ID] = o
	trades := e.commitFills(ms, o, fills)

	if o.Remaining() > 0 {
		ms.books[o.Outcome].rest(o)
	}

	return *o, trades, nil
}

// fill is one planned execution of a taker against a resting maker.
type fill struct {
	maker    *domain.Order
	qty      int64
	price    int64
	notional int64
	fee      int64
}

// planFills walks the opposite side of the book in price-time priority and
// returns the executions a taker would produce. The maker's price always sets
// the execution price; fee = qty·feeRate/10000 capped at the notional. The
// walk reads the book without mutating it.
func (e *Engine) planFills(ms *marketState, taker *domain.Order) []fill {
	bk := ms.books[taker.Outcome]
	remaining := taker.Remaining()
	var fills []fill

	walk := func(lvl *priceLevel) bool {
		if taker.Side == domain.SideBuy {
			if lvl.price > taker.Price {
				return false
			}
		} else if lvl.price < taker.Price {
			return false
		}
		for n := lvl.head; n != nil && remaining > 0; n = n.next {
			maker := n.order
			qty := min(remaining, maker.Remaining())
			notional := qty * lvl.price / domain.MaxPriceBps
			fee := qty * ms.info.FeeRateBps / domain.MaxPriceBps
			if fee > notional {
				fee = notional
			}
			fills = append(fills, fill{
				maker:    maker,
				qty:      qty,
				price:    lvl.price,
				notional: notional,
				fee:      fee,
			})
			remaining -= qty
		}
		return remaining > 0
	}

	if taker.Side == domain.SideBuy {
		bk.asks.ascend(walk)
	} else {
		bk.bids.descend(walk)
	}
	return fills
}

// settleFills runs every ledger movement a fill plan requires: each seller is
// paid the notional minus the fee out of escrow, then a buy taker's surplus
// refund. If any transfer fails, the completed ones are reversed and the
// taker's deposit returned, so the ledger ends where it started.
func (e *Engine) settleFills(ctx context.Context, taker *domain.Order, fills []fill, refund, deposit int64) error {
	sellerOf := func(f fill) string {
		if taker.Side == domain.SideBuy {
			return f.maker.Trader
		}
		return taker.Trader
	}

	unwind := func(done []fill) {
		for _, f := range done {
			_ = e.ledger.Transfer(ctx, sellerOf(f), e.cfg.EscrowAccount, f.notional-f.fee)
		}
		_ = e.ledger.Transfer(ctx, e.cfg.EscrowAccount, taker.Trader, deposit)
	}

	for i, f := range fills {
		if err := e.ledger.Transfer(ctx, e.cfg.EscrowAccount, sellerOf(f), f.notional-f.fee); err != nil {
			unwind(fills[:i])
			return fmt.Errorf("engine: settle trade: %w", err)
		}
	}

	if refund > 0 {
		if err := e.ledger.Transfer(ctx, e.cfg.EscrowAccount, taker.Trader, refund); err != nil {
			unwind(fills)
			return fmt.Errorf("engine: refund surplus: %w", err)
		}
	}
	return nil
}

// commitFills applies a settled fill plan: fills are accounted on both orders
// and the book, the buyer is credited units on the pair's outcome channel and
// the seller on the opposite channel, fees and volume accrue to the market,
// and a Trade record is emitted per execution. Nothing here can fail.
func (e *Engine) commitFills(ms *marketState, taker *domain.Order, fills []fill) []domain.Trade {
	bk := ms.books[taker.Outcome]
	trades := make([]domain.Trade, 0, len(fills))

	for _, f := range fills {
		taker.Filled += f.qty
		f.maker.Filled += f.qty
		bk.reduce(f.maker, f.qty)

		buyer, seller := taker, f.maker
		if taker.Side == domain.SideSell {
			buyer, seller = f.maker, taker
		}

		ms.position(buyer.Trader).Credit(taker.Outcome, f.qty)
		ms.position(seller.Trader).Credit(taker.Outcome.Opposite(), f.qty)

		ms.info.FeesAccrued += f.fee
		if taker.Outcome == domain.OutcomeYes {
			ms.info.YesVolume += f.qty
		} else {
			ms.info.NoVolume += f.qty
		}

		trades = append(trades, domain.Trade{
			ID:           uuid.New().String(),
			MarketID:     ms.info.ID,
			Outcome:      taker.Outcome,
			TakerOrderID: taker.ID,
			MakerOrderID: f.maker.ID,
			Buyer:        buyer.Trader,
			Seller:       seller.Trader,
			Price:        f.price,
			Quantity:     f.qty,
			Fee:          f.fee,
			ExecutedAt:   e.clock().UTC(),
		})
	}
	return trades
}

// CancelOrder marks an order cancelled and refunds the escrow behind its
// unfilled remainder. Only the owner may cancel, and only while the order is
// neither cancelled nor fully filled.
func (e *Engine) CancelOrder(ctx context.Context, marketID, orderID, caller string) (domain.Order, error) {
	ms, err := e.state(marketID)
	if err != nil {
		return domain.Order{}, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	o, ok := ms.orders[orderID]
	if !ok {
		return domain.Order{}, fmt.Errorf("engine: order %s: %w", orderID, domain.ErrNotFound)
	}
	switch {
	case o.Trader != caller:
		return domain.Order{}, domain.ErrNotOrderOwner
	case o.Cancelled:
		return domain.Order{}, domain.ErrAlreadyCancelled
	case o.Remaining() == 0:
		return domain.Order{}, domain.ErrFullyFilled
	}

	// Refund before touching state: a failed transfer leaves the order
	// resting and cancellable again.
	refund := domain.EscrowFor(o.Side, o.Price, o.Remaining())
	if err := e.ledger.Transfer(ctx, e.cfg.EscrowAccount, o.Trader, refund); err != nil {
		return domain.Order{}, fmt.Errorf("engine: cancel refund: %w", err)
	}

	o.Cancelled = true
	ms.books[o.Outcome].remove(o)
	return *o, nil
}

// ResolveMarket fires the one-way Open→Resolved transition once the deadline
// has passed and the oracle holds a finalized answer. The winning outcome is
// yes when the numeric answer is positive or the boolean answer is true,
// matching the reference derivation.
func (e *Engine) ResolveMarket(ctx context.Context, marketID string) (domain.Market, error) {
	ms, err := e.state(marketID)
	if err != nil {
		return domain.Market{}, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.info.Resolved {
		return domain.Market{}, domain.ErrAlreadyResolved
	}
	if e.clock().Before(ms.info.Deadline) {
		return domain.Market{}, domain.ErrMarketNotExpired
	}

	ans, err := e.oracle.GetAnswer(ctx, ms.info.QuestionID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("engine: oracle answer: %w", err)
	}
	if !ans.Answered() {
		return domain.Market{}, domain.ErrNotYetAnswered
	}

	now := e.clock().UTC()
	ms.info.Resolved = true
	ms.info.Outcome = ans.Numeric > 0 || ans.Bool
	ms.info.ResolvedAt = &now

	return ms.info, nil
}

// ClaimWinnings pays the caller's winning-channel units at par and consumes
// the position. The claimed flag makes the operation idempotent at the data
// level: a second call can never pay twice.
func (e *Engine) ClaimWinnings(ctx context.Context, marketID, trader string) (int64, error) {
	ms, err := e.state(marketID)
	if err != nil {
		return 0, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if !ms.info.Resolved {
		return 0, domain.ErrNotResolved
	}

	pos, ok := ms.positions[trader]
	if !ok {
		return 0, domain.ErrNoWinningPosition
	}
	if pos.Claimed {
		return 0, domain.ErrAlreadyClaimed
	}

	payout := pos.Units(ms.info.WinningOutcome())
	if payout == 0 {
		return 0, domain.ErrNoWinningPosition
	}

	if err := e.ledger.Transfer(ctx, e.cfg.EscrowAccount, trader, payout); err != nil {
		return 0, fmt.Errorf("engine: claim payout: %w", err)
	}
	pos.YesUnits = 0
	pos.NoUnits = 0
	pos.Claimed = true

	return payout, nil
}

// WithdrawFees transfers the market's accrued fees to the admin account. The
// caller must hold the admin capability.
func (e *Engine) WithdrawFees(ctx context.Context, marketID, caller string) (int64, error) {
	if caller != e.cfg.Admin {
		return 0, domain.ErrNotAdmin
	}

	ms, err := e.state(marketID)
	if err != nil {
		return 0, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	amount := ms.info.FeesAccrued
	if amount == 0 {
		return 0, nil
	}
	if err := e.ledger.Transfer(ctx, e.cfg.EscrowAccount, e.cfg.Admin, amount); err != nil {
		return 0, fmt.Errorf("engine: withdraw fees: %w", err)
	}
	ms.info.FeesAccrued = 0
	return amount, nil
}

// Market returns a copy of a market's current record.
func (e *Engine) Market(marketID string) (domain.Market, error) {
	ms, err := e.state(marketID)
	if err != nil {
		return domain.Market{}, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.info, nil
}

// Markets returns copies of all market records.
func (e *Engine) Markets() []domain.Market {
	e.mu.RLock()
	states := make([]*marketState, 0, len(e.markets))
	for _, ms := range e.markets {
		states = append(states, ms)
	}
	e.mu.RUnlock()

	out := make([]domain.Market, 0, len(states))
	for _, ms := range states {
		ms.mu.Lock()
		out = append(out, ms.info)
		ms.mu.Unlock()
	}
	return out
}

// Order returns a copy of one order.
func (e *Engine) Order(marketID, orderID string) (domain.Order, error) {
	ms, err := e.state(marketID)
	if err != nil {
		return domain.Order{}, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	o, ok := ms.orders[orderID]
	if !ok {
		return domain.Order{}, fmt.Errorf("engine: order %s: %w", orderID, domain.ErrNotFound)
	}
	return *o, nil
}

// Position returns a copy of a trader's position on a market. A trader with
// no matches yet gets an empty, unclaimed position.
func (e *Engine) Position(marketID, trader string) (domain.Position, error) {
	ms, err := e.state(marketID)
	if err != nil {
		return domain.Position{}, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if pos, ok := ms.positions[trader]; ok {
		return *pos, nil
	}
	return domain.Position{MarketID: marketID, Trader: trader}, nil
}

// OrderBook returns the active book on one outcome channel.
func (e *Engine) OrderBook(marketID string, outcome domain.Outcome) (domain.BookSnapshot, error) {
	ms, err := e.state(marketID)
	if err != nil {
		return domain.BookSnapshot{}, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	bk := ms.books[outcome]
	bids, asks := bk.snapshot()

	snap := domain.BookSnapshot{
		MarketID:  marketID,
		Outcome:   outcome,
		Bids:      bids,
		Asks:      asks,
		Mid:       domain.NeutralPriceBps,
		Timestamp: e.clock().UTC(),
	}
	if len(bids) > 0 {
		snap.BestBid = bids[0].Price
	}
	if len(asks) > 0 {
		snap.BestAsk = asks[0].Price
	}
	if snap.BestBid > 0 && snap.BestAsk > 0 {
		snap.Mid = (snap.BestBid + snap.BestAsk) / 2
	}
	return snap, nil
}

// OpenOrders returns copies of the active (unfilled, uncancelled) orders
// resting on one outcome channel, each side in match priority.
func (e *Engine) OpenOrders(marketID string, outcome domain.Outcome) (bids, asks []domain.Order, err error) {
	ms, err := e.state(marketID)
	if err != nil {
		return nil, nil, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	restingBids, restingAsks := ms.books[outcome].openOrders()
	bids = make([]domain.Order, 0, len(restingBids))
	for _, o := range restingBids {
		bids = append(bids, *o)
	}
	asks = make([]domain.Order, 0, len(restingAsks))
	for _, o := range restingAsks {
		asks = append(asks, *o)
	}
	return bids, asks, nil
}

// MarketPrice returns the midpoint of the best bid and ask on a channel, or
// the neutral default when either side of the book is empty.
func (e *Engine) MarketPrice(marketID string, outcome domain.Outcome) (int64, error) {
	snap, err := e.OrderBook(marketID, outcome)
	if err != nil {
		return 0, err
	}
	return snap.Mid, nil
}

func (e *Engine) state(marketID string) (*marketState, error) {
	e.mu.RLock()
	ms, ok := e.markets[marketID]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("engine: market %s: %w", marketID, domain.ErrNotFound)
	}
	return ms, nil
}

// position returns the trader's position, creating it lazily on first touch.
func (ms *marketState) position(trader string) *domain.Position {
	pos, ok := ms.positions[trader]
	if !ok {
		pos = &domain.Position{MarketID: ms.info.ID, Trader: trader}
		ms.positions[trader] = pos
	}
	return pos
}
