package engine

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictd/internal/domain"
	"github.com/alanyoungcy/predictd/internal/ledger"
	"github.com/alanyoungcy/predictd/internal/oracle"
)

const (
	admin    = "admin"
	reporter = "reporter"
	escrow   = "escrow"
	oracleAc = "oracle"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	engine *Engine
	ledger *ledger.MemLedger
	board  *oracle.Board
	clock  *fakeClock
}

func newFixture(t *testing.T, feeRateBps int64) *fixture {
	t.Helper()

	l := ledger.NewMemLedger()
	b := oracle.NewBoard(reporter)
	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	e := New(Config{
		MinOrderSize:  1,
		FeeRateBps:    feeRateBps,
		QuestionFee:   10,
		Admin:         admin,
		EscrowAccount: escrow,
		OracleAccount: oracleAc,
	}, l, b, clk.Now)

	return &fixture{engine: e, ledger: l, board: b, clock: clk}
}

func (f *fixture) fund(account string, amount int64) {
	f.ledger.Mint(account, amount)
}

func (f *fixture) createMarket(t *testing.T) domain.Market {
	t.Helper()
	f.fund("creator", 10)
	m, err := f.engine.CreateMarket(context.Background(), "creator", "will X happen?", f.clock.Now().Add(24*time.Hour))
	require.NoError(t, err)
	return m
}

func (f *fixture) place(t *testing.T, marketID, trader string, side domain.Side, outcome domain.Outcome, price, qty int64) (domain.Order, []domain.Trade) {
	t.Helper()
	o, trades, err := f.engine.PlaceOrder(context.Background(), PlaceOrderParams{
		MarketID: marketID,
		Trader:   trader,
		Side:     side,
		Outcome:  outcome,
		Price:    price,
		Quantity: qty,
	})
	require.NoError(t, err)
	return o, trades
}

func (f *fixture) balance(t *testing.T, account string) int64 {
	t.Helper()
	bal, err := f.ledger.Balance(context.Background(), account)
	require.NoError(t, err)
	return bal
}

func TestCreateMarket_Validation(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	f.fund("creator", 100)

	_, err := f.engine.CreateMarket(ctx, "creator", "", f.clock.Now().Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrEmptyQuestion)

	_, err = f.engine.CreateMarket(ctx, "creator", "q", f.clock.Now().Add(-time.Hour))
	assert.ErrorIs(t, err, domain.ErrInvalidDeadline)

	_, err = f.engine.CreateMarket(ctx, "pauper", "q", f.clock.Now().Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	m, err := f.engine.CreateMarket(ctx, "creator", "q", f.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.NotEmpty(t, m.QuestionID)
	assert.False(t, m.Resolved)

	// Question fee forwarded to the oracle account.
	assert.Equal(t, int64(10), f.balance(t, oracleAc))
}

func TestPlaceOrder_Validation(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	m := f.createMarket(t)
	f.fund("alice", 1000)

	cases := []struct {
		name string
		p    PlaceOrderParams
		want error
	}{
		{"unknown market", PlaceOrderParams{MarketID: "nope", Trader: "alice", Side: domain.SideBuy, Outcome: domain.OutcomeYes, Price: 5000, Quantity: 10}, domain.ErrNotFound},
		{"price zero", PlaceOrderParams{MarketID: m.ID, Trader: "alice", Side: domain.SideBuy, Outcome: domain.OutcomeYes, Price: 0, Quantity: 10}, domain.ErrInvalidPrice},
		{"price above max", PlaceOrderParams{MarketID: m.ID, Trader: "alice", Side: domain.SideBuy, Outcome: domain.OutcomeYes, Price: domain.MaxPriceBps + 1, Quantity: 10}, domain.ErrInvalidPrice},
		{"bad side", PlaceOrderParams{MarketID: m.ID, Trader: "alice", Side: "hold", Outcome: domain.OutcomeYes, Price: 5000, Quantity: 10}, domain.ErrInvalidSide},
		{"bad outcome", PlaceOrderParams{MarketID: m.ID, Trader: "alice", Side: domain.SideBuy, Outcome: "maybe", Price: 5000, Quantity: 10}, domain.ErrInvalidOutcome},
		{"too small", PlaceOrderParams{MarketID: m.ID, Trader: "alice", Side: domain.SideBuy, Outcome: domain.OutcomeYes, Price: 5000, Quantity: 0}, domain.ErrOrderTooSmall},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := f.engine.PlaceOrder(ctx, tc.p)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	// Deposit shortfall: a sell of 10 needs 10 escrowed.
	_, _, err := f.engine.PlaceOrder(ctx, PlaceOrderParams{
		MarketID: m.ID, Trader: "pauper", Side: domain.SideSell,
		Outcome: domain.OutcomeYes, Price: 5000, Quantity: 10,
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientDeposit)

	// Expired market.
	f.clock.Advance(25 * time.Hour)
	_, _, err = f.engine.PlaceOrder(ctx, PlaceOrderParams{
		MarketID: m.ID, Trader: "alice", Side: domain.SideBuy,
		Outcome: domain.OutcomeYes, Price: 5000, Quantity: 10,
	})
	assert.ErrorIs(t, err, domain.ErrMarketExpired)
}

// End-to-end: a resting sell-yes at 5000 fully crossed by a buy-yes at 6000.
// Execution happens at the maker's 5000, the buyer is credited yes units, the
// seller no units, and the fee comes out of the seller's proceeds.
func TestMatch_EndToEnd(t *testing.T) {
	f := newFixture(t, 200) // 2% fee
	m := f.createMarket(t)

	const qty = 10000
	f.fund("seller", qty)
	f.fund("buyer", qty*6000/10000)

	sellOrder, trades := f.place(t, m.ID, "seller", domain.SideSell, domain.OutcomeYes, 5000, qty)
	assert.Empty(t, trades)

	buyOrder, trades := f.place(t, m.ID, "buyer", domain.SideBuy, domain.OutcomeYes, 6000, qty)
	require.Len(t, trades, 1)

	tr := trades[0]
	assert.Equal(t, int64(5000), tr.Price)
	assert.Equal(t, int64(qty), tr.Quantity)
	assert.Equal(t, sellOrder.ID, tr.MakerOrderID)
	assert.Equal(t, buyOrder.ID, tr.TakerOrderID)
	assert.Equal(t, "buyer", tr.Buyer)
	assert.Equal(t, "seller", tr.Seller)

	notional := int64(qty) * 5000 / domain.MaxPriceBps // 5000
	fee := int64(qty) * 200 / domain.MaxPriceBps       // 200
	assert.Equal(t, fee, tr.Fee)

	// Seller receives proceeds minus fee; their full quantity stays escrowed
	// backing the no-claim they minted.
	assert.Equal(t, notional-fee, f.balance(t, "seller"))

	// Buyer paid 5000 at the maker price but escrowed 6000 at their own
	// limit; the saving comes back.
	assert.Equal(t, int64(qty)*6000/domain.MaxPriceBps-notional, f.balance(t, "buyer"))

	// Positions: buyer holds yes, seller holds no.
	buyerPos, err := f.engine.Position(m.ID, "buyer")
	require.NoError(t, err)
	assert.Equal(t, int64(qty), buyerPos.YesUnits)
	assert.Zero(t, buyerPos.NoUnits)

	sellerPos, err := f.engine.Position(m.ID, "seller")
	require.NoError(t, err)
	assert.Equal(t, int64(qty), sellerPos.NoUnits)
	assert.Zero(t, sellerPos.YesUnits)

	// Both orders inert, volume recorded, fee accrued.
	got, err := f.engine.Market(m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(qty), got.YesVolume)
	assert.Equal(t, fee, got.FeesAccrued)

	for _, id := range []string{sellOrder.ID, buyOrder.ID} {
		o, err := f.engine.Order(m.ID, id)
		require.NoError(t, err)
		assert.Zero(t, o.Remaining())
	}
}

// Price priority: with sells resting at 4500 (posted first) and 4000, a buy
// at 4500 covering both must exhaust the 4000 level before touching 4500.
func TestMatch_PricePriority(t *testing.T) {
	f := newFixture(t, 0)
	m := f.createMarket(t)

	f.fund("s1", 10)
	f.fund("s2", 10)
	f.fund("buyer", 9)

	f.place(t, m.ID, "s1", domain.SideSell, domain.OutcomeYes, 4500, 10)
	f.place(t, m.ID, "s2", domain.SideSell, domain.OutcomeYes, 4000, 10)

	_, trades := f.place(t, m.ID, "buyer", domain.SideBuy, domain.OutcomeYes, 4500, 20)
	require.Len(t, trades, 2)
	assert.Equal(t, int64(4000), trades[0].Price)
	assert.Equal(t, int64(10), trades[0].Quantity)
	assert.Equal(t, int64(4500), trades[1].Price)
	assert.Equal(t, int64(10), trades[1].Quantity)
}

// Time priority: equal prices fill in arrival order.
func TestMatch_TimePriority(t *testing.T) {
	f := newFixture(t, 0)
	m := f.createMarket(t)

	f.fund("first", 10)
	f.fund("second", 10)
	f.fund("buyer", 5)

	f.place(t, m.ID, "first", domain.SideSell, domain.OutcomeYes, 5000, 10)
	f.place(t, m.ID, "second", domain.SideSell, domain.OutcomeYes, 5000, 10)

	_, trades := f.place(t, m.ID, "buyer", domain.SideBuy, domain.OutcomeYes, 5000, 10)
	require.Len(t, trades, 1)
	assert.Equal(t, "first", trades[0].Seller)
}

// Partial fills leave the remainder resting and keep fills within bounds.
func TestMatch_PartialFill(t *testing.T) {
	f := newFixture(t, 0)
	m := f.createMarket(t)

	f.fund("seller", 4)
	f.fund("buyer", 5)

	f.place(t, m.ID, "seller", domain.SideSell, domain.OutcomeYes, 5000, 4)
	buyOrder, trades := f.place(t, m.ID, "buyer", domain.SideBuy, domain.OutcomeYes, 5000, 10)
	require.Len(t, trades, 1)
	assert.Equal(t, int64(4), trades[0].Quantity)

	o, err := f.engine.Order(m.ID, buyOrder.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), o.Filled)
	assert.Equal(t, int64(6), o.Remaining())
	assert.LessOrEqual(t, o.Filled, o.Quantity)

	snap, err := f.engine.OrderBook(m.ID, domain.OutcomeYes)
	require.NoError(t, err)
	require.Len(t, snap.Bids, 1)
	assert.Equal(t, int64(5000), snap.Bids[0].Price)
	assert.Equal(t, int64(6), snap.Bids[0].Quantity)
	assert.Empty(t, snap.Asks)
}

// Outcome channels do not cross: a no-channel sell never matches a
// yes-channel buy.
func TestMatch_ChannelsAreIndependent(t *testing.T) {
	f := newFixture(t, 0)
	m := f.createMarket(t)

	f.fund("seller", 10)
	f.fund("buyer", 10)

	f.place(t, m.ID, "seller", domain.SideSell, domain.OutcomeNo, 5000, 10)
	_, trades := f.place(t, m.ID, "buyer", domain.SideBuy, domain.OutcomeYes, 5000, 10)
	assert.Empty(t, trades)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	m := f.createMarket(t)

	f.fund("buyer", 5)
	f.fund("seller", 4)

	buyOrder, _ := f.place(t, m.ID, "buyer", domain.SideBuy, domain.OutcomeYes, 5000, 10)
	f.place(t, m.ID, "seller", domain.SideSell, domain.OutcomeYes, 5000, 4)

	// Only the owner may cancel.
	_, err := f.engine.CancelOrder(ctx, m.ID, buyOrder.ID, "stranger")
	assert.ErrorIs(t, err, domain.ErrNotOrderOwner)

	// filled=4 of 10 at 5000: refund (10-4)*5000/10000 = 3.
	before := f.balance(t, "buyer")
	cancelled, err := f.engine.CancelOrder(ctx, m.ID, buyOrder.ID, "buyer")
	require.NoError(t, err)
	assert.True(t, cancelled.Cancelled)
	assert.Equal(t, before+3, f.balance(t, "buyer"))

	// A second cancellation fails and pays nothing.
	_, err = f.engine.CancelOrder(ctx, m.ID, buyOrder.ID, "buyer")
	assert.ErrorIs(t, err, domain.ErrAlreadyCancelled)
	assert.Equal(t, before+3, f.balance(t, "buyer"))

	// The cancelled remainder is off the book.
	snap, err := f.engine.OrderBook(m.ID, domain.OutcomeYes)
	require.NoError(t, err)
	assert.Empty(t, snap.Bids)
}

func TestCancelOrder_FullyFilled(t *testing.T) {
	f := newFixture(t, 0)
	m := f.createMarket(t)

	f.fund("buyer", 5)
	f.fund("seller", 10)

	f.place(t, m.ID, "seller", domain.SideSell, domain.OutcomeYes, 5000, 10)
	buyOrder, trades := f.place(t, m.ID, "buyer", domain.SideBuy, domain.OutcomeYes, 5000, 10)
	require.Len(t, trades, 1)

	_, err := f.engine.CancelOrder(context.Background(), m.ID, buyOrder.ID, "buyer")
	assert.ErrorIs(t, err, domain.ErrFullyFilled)
}

// Cancelling a sell refunds the full unfilled quantity.
func TestCancelOrder_SellRefund(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	m := f.createMarket(t)

	f.fund("seller", 10)
	sellOrder, _ := f.place(t, m.ID, "seller", domain.SideSell, domain.OutcomeYes, 5000, 10)
	assert.Equal(t, int64(0), f.balance(t, "seller"))

	_, err := f.engine.CancelOrder(ctx, m.ID, sellOrder.ID, "seller")
	require.NoError(t, err)
	assert.Equal(t, int64(10), f.balance(t, "seller"))
}

func TestResolveMarket(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	m := f.createMarket(t)

	_, err := f.engine.ResolveMarket(ctx, m.ID)
	assert.ErrorIs(t, err, domain.ErrMarketNotExpired)

	f.clock.Advance(25 * time.Hour)

	_, err = f.engine.ResolveMarket(ctx, m.ID)
	assert.ErrorIs(t, err, domain.ErrNotYetAnswered)

	// A numeric answer forces yes even with a false boolean, matching the
	// reference derivation.
	require.NoError(t, f.board.Submit(reporter, m.QuestionID, false, 7))

	resolved, err := f.engine.ResolveMarket(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, resolved.Resolved)
	assert.True(t, resolved.Outcome)
	assert.Equal(t, domain.OutcomeYes, resolved.WinningOutcome())

	_, err = f.engine.ResolveMarket(ctx, m.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)

	// No orders once resolved.
	f.fund("alice", 100)
	_, _, err = f.engine.PlaceOrder(ctx, PlaceOrderParams{
		MarketID: m.ID, Trader: "alice", Side: domain.SideBuy,
		Outcome: domain.OutcomeYes, Price: 5000, Quantity: 10,
	})
	assert.ErrorIs(t, err, domain.ErrMarketResolved)
}

func TestClaimWinnings(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	m := f.createMarket(t)

	f.fund("seller", 10)
	f.fund("buyer", 5)
	f.place(t, m.ID, "seller", domain.SideSell, domain.OutcomeYes, 5000, 10)
	f.place(t, m.ID, "buyer", domain.SideBuy, domain.OutcomeYes, 5000, 10)

	_, err := f.engine.ClaimWinnings(ctx, m.ID, "buyer")
	assert.ErrorIs(t, err, domain.ErrNotResolved)

	f.clock.Advance(25 * time.Hour)
	require.NoError(t, f.board.Submit(reporter, m.QuestionID, true, 0))
	_, err = f.engine.ResolveMarket(ctx, m.ID)
	require.NoError(t, err)

	// Yes won: the buyer holds 10 yes units, paid 1:1.
	payout, err := f.engine.ClaimWinnings(ctx, m.ID, "buyer")
	require.NoError(t, err)
	assert.Equal(t, int64(10), payout)

	// Never twice.
	_, err = f.engine.ClaimWinnings(ctx, m.ID, "buyer")
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)

	// The seller holds only losing no units.
	_, err = f.engine.ClaimWinnings(ctx, m.ID, "seller")
	assert.ErrorIs(t, err, domain.ErrNoWinningPosition)

	// A bystander has nothing to claim.
	_, err = f.engine.ClaimWinnings(ctx, m.ID, "stranger")
	assert.ErrorIs(t, err, domain.ErrNoWinningPosition)
}

func TestWithdrawFees(t *testing.T) {
	f := newFixture(t, 200)
	ctx := context.Background()
	m := f.createMarket(t)

	const qty = 10000
	f.fund("seller", qty)
	f.fund("buyer", qty/2)
	f.place(t, m.ID, "seller", domain.SideSell, domain.OutcomeYes, 5000, qty)
	f.place(t, m.ID, "buyer", domain.SideBuy, domain.OutcomeYes, 5000, qty)

	_, err := f.engine.WithdrawFees(ctx, m.ID, "seller")
	assert.ErrorIs(t, err, domain.ErrNotAdmin)

	fee := int64(qty) * 200 / domain.MaxPriceBps
	got, err := f.engine.WithdrawFees(ctx, m.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, fee, got)
	assert.Equal(t, fee, f.balance(t, admin))

	// Drained.
	got, err = f.engine.WithdrawFees(ctx, m.ID, admin)
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestMarketPrice(t *testing.T) {
	f := newFixture(t, 0)
	m := f.createMarket(t)

	// Empty book: neutral default.
	mid, err := f.engine.MarketPrice(m.ID, domain.OutcomeYes)
	require.NoError(t, err)
	assert.Equal(t, domain.NeutralPriceBps, mid)

	// One-sided book: still neutral.
	f.fund("seller", 10)
	f.place(t, m.ID, "seller", domain.SideSell, domain.OutcomeYes, 6000, 10)
	mid, err = f.engine.MarketPrice(m.ID, domain.OutcomeYes)
	require.NoError(t, err)
	assert.Equal(t, domain.NeutralPriceBps, mid)

	// Two-sided book: midpoint of best bid and ask.
	f.fund("buyer", 4)
	f.place(t, m.ID, "buyer", domain.SideBuy, domain.OutcomeYes, 4000, 10)
	mid, err = f.engine.MarketPrice(m.ID, domain.OutcomeYes)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), mid)
}

// flakyLedger delegates to a real ledger but fails the failOn-th Transfer
// call (1-based). failOn zero never fails.
type flakyLedger struct {
	*ledger.MemLedger
	calls  int
	failOn int
}

func (l *flakyLedger) Transfer(ctx context.Context, from, to string, amount int64) error {
	l.calls++
	if l.calls == l.failOn {
		return errors.New("ledger unavailable")
	}
	return l.MemLedger.Transfer(ctx, from, to, amount)
}

func newFlakyFixture(t *testing.T) (*Engine, *flakyLedger, *fakeClock) {
	t.Helper()

	fl := &flakyLedger{MemLedger: ledger.NewMemLedger()}
	clk := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	e := New(Config{
		MinOrderSize:  1,
		FeeRateBps:    0,
		QuestionFee:   10,
		Admin:         admin,
		EscrowAccount: escrow,
		OracleAccount: oracleAc,
	}, fl, oracle.NewBoard(reporter), clk.Now)

	return e, fl, clk
}

// A transfer failure partway through settlement must leave no trace: no fills
// on either order, no positions, the book untouched, and the taker's deposit
// back in their account.
func TestPlaceOrder_SettlementFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	e, fl, clk := newFlakyFixture(t)

	fl.Mint("creator", 10)
	m, err := e.CreateMarket(ctx, "creator", "will X happen?", clk.Now().Add(24*time.Hour))
	require.NoError(t, err)

	fl.Mint("s1", 10)
	fl.Mint("s2", 10)
	fl.Mint("buyer", 10)

	s1Order, _, err := e.PlaceOrder(ctx, PlaceOrderParams{
		MarketID: m.ID, Trader: "s1", Side: domain.SideSell,
		Outcome: domain.OutcomeYes, Price: 5000, Quantity: 10,
	})
	require.NoError(t, err)
	s2Order, _, err := e.PlaceOrder(ctx, PlaceOrderParams{
		MarketID: m.ID, Trader: "s2", Side: domain.SideSell,
		Outcome: domain.OutcomeYes, Price: 5000, Quantity: 10,
	})
	require.NoError(t, err)

	// Transfers so far: question fee, two sell escrows. A 20-lot buy adds its
	// own escrow then two settlements; fail the second settlement.
	fl.failOn = 6

	_, _, err = e.PlaceOrder(ctx, PlaceOrderParams{
		MarketID: m.ID, Trader: "buyer", Side: domain.SideBuy,
		Outcome: domain.OutcomeYes, Price: 5000, Quantity: 20,
	})
	require.Error(t, err)

	// Deposit back, first settlement reversed.
	buyerBal, err := e.ledger.Balance(ctx, "buyer")
	require.NoError(t, err)
	assert.Equal(t, int64(10), buyerBal)
	s1Bal, err := e.ledger.Balance(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, s1Bal)

	// No positions credited.
	for _, trader := range []string{"buyer", "s1", "s2"} {
		pos, err := e.Position(m.ID, trader)
		require.NoError(t, err)
		assert.Zero(t, pos.YesUnits)
		assert.Zero(t, pos.NoUnits)
	}

	// Makers untouched and still resting.
	for _, id := range []string{s1Order.ID, s2Order.ID} {
		o, err := e.Order(m.ID, id)
		require.NoError(t, err)
		assert.Zero(t, o.Filled)
	}
	snap, err := e.OrderBook(m.ID, domain.OutcomeYes)
	require.NoError(t, err)
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, int64(20), snap.Asks[0].Quantity)
	assert.Equal(t, 2, snap.Asks[0].Orders)

	// No volume, no fees, no phantom taker order.
	info, err := e.Market(m.ID)
	require.NoError(t, err)
	assert.Zero(t, info.YesVolume)
	assert.Zero(t, info.FeesAccrued)

	// Once the ledger recovers the same buy goes through cleanly.
	fl.failOn = 0
	_, trades, err := e.PlaceOrder(ctx, PlaceOrderParams{
		MarketID: m.ID, Trader: "buyer", Side: domain.SideBuy,
		Outcome: domain.OutcomeYes, Price: 5000, Quantity: 20,
	})
	require.NoError(t, err)
	require.Len(t, trades, 2)

	pos, err := e.Position(m.ID, "buyer")
	require.NoError(t, err)
	assert.Equal(t, int64(20), pos.YesUnits)
}

// A failed refund transfer must not mark the order cancelled, so the owner
// can retry once the ledger recovers.
func TestCancelOrder_RefundFailureKeepsOrder(t *testing.T) {
	ctx := context.Background()
	e, fl, clk := newFlakyFixture(t)

	fl.Mint("creator", 10)
	m, err := e.CreateMarket(ctx, "creator", "will X happen?", clk.Now().Add(24*time.Hour))
	require.NoError(t, err)

	fl.Mint("seller", 10)
	sellOrder, _, err := e.PlaceOrder(ctx, PlaceOrderParams{
		MarketID: m.ID, Trader: "seller", Side: domain.SideSell,
		Outcome: domain.OutcomeYes, Price: 5000, Quantity: 10,
	})
	require.NoError(t, err)

	// Transfers so far: question fee, sell escrow. Fail the refund.
	fl.failOn = 3
	_, err = e.CancelOrder(ctx, m.ID, sellOrder.ID, "seller")
	require.Error(t, err)

	o, err := e.Order(m.ID, sellOrder.ID)
	require.NoError(t, err)
	assert.False(t, o.Cancelled)
	bal, err := e.ledger.Balance(ctx, "seller")
	require.NoError(t, err)
	assert.Zero(t, bal)

	snap, err := e.OrderBook(m.ID, domain.OutcomeYes)
	require.NoError(t, err)
	require.Len(t, snap.Asks, 1)

	// Retry succeeds.
	fl.failOn = 0
	cancelled, err := e.CancelOrder(ctx, m.ID, sellOrder.ID, "seller")
	require.NoError(t, err)
	assert.True(t, cancelled.Cancelled)
	bal, err = e.ledger.Balance(ctx, "seller")
	require.NoError(t, err)
	assert.Equal(t, int64(10), bal)
}

// OpenOrders exposes the individual resting orders in match priority and
// drops them as they cancel or fill.
func TestOpenOrders(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	m := f.createMarket(t)

	f.fund("s1", 10)
	f.fund("s2", 10)
	f.fund("b1", 4)
	f.fund("b2", 4)

	askHigh, _ := f.place(t, m.ID, "s1", domain.SideSell, domain.OutcomeYes, 5500, 10)
	askLow, _ := f.place(t, m.ID, "s2", domain.SideSell, domain.OutcomeYes, 5000, 10)
	bidLow, _ := f.place(t, m.ID, "b1", domain.SideBuy, domain.OutcomeYes, 4000, 10)
	bidHigh, _ := f.place(t, m.ID, "b2", domain.SideBuy, domain.OutcomeYes, 4500, 10)

	_, _, err := f.engine.OpenOrders("nope", domain.OutcomeYes)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	bids, asks, err := f.engine.OpenOrders(m.ID, domain.OutcomeYes)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	require.Len(t, asks, 2)
	assert.Equal(t, bidHigh.ID, bids[0].ID)
	assert.Equal(t, bidLow.ID, bids[1].ID)
	assert.Equal(t, askLow.ID, asks[0].ID)
	assert.Equal(t, askHigh.ID, asks[1].ID)

	// Cancelled and fully filled orders drop out.
	_, err = f.engine.CancelOrder(ctx, m.ID, bidLow.ID, "b1")
	require.NoError(t, err)
	f.fund("taker", 5)
	_, trades := f.place(t, m.ID, "taker", domain.SideBuy, domain.OutcomeYes, 5000, 10)
	require.Len(t, trades, 1)

	bids, asks, err = f.engine.OpenOrders(m.ID, domain.OutcomeYes)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	require.Len(t, asks, 1)
	assert.Equal(t, bidHigh.ID, bids[0].ID)
	assert.Equal(t, askHigh.ID, asks[0].ID)
	assert.Equal(t, int64(10), asks[0].Remaining())
}

// Solvency: after any sequence of valid operations the escrow account covers
// every resting order's refundable escrow, every unclaimed position's worst-
// case payout, and the accrued fees. Verified over randomized operation
// sequences; integer floors may only ever leave dust in the engine's favor.
func TestSolvency_RandomizedSequences(t *testing.T) {
	const (
		traders  = 6
		ops      = 400
		seedBase = 7
	)

	for round := int64(0); round < 5; round++ {
		rng := rand.New(rand.NewSource(seedBase + round))

		f := newFixture(t, 150)
		m := f.createMarket(t)
		ctx := context.Background()

		names := make([]string, traders)
		for i := range names {
			names[i] = string(rune('a' + i))
			f.fund(names[i], 1_000_000)
		}

		var placed []string
		resolved := false

		checkSolvency := func() {
			t.Helper()

			var resting int64
			for _, id := range placed {
				o, err := f.engine.Order(m.ID, id)
				require.NoError(t, err)
				require.GreaterOrEqual(t, o.Filled, int64(0))
				require.LessOrEqual(t, o.Filled, o.Quantity)
				if o.Active() {
					resting += domain.EscrowFor(o.Side, o.Price, o.Remaining())
				}
			}

			info, err := f.engine.Market(m.ID)
			require.NoError(t, err)

			var obligation int64
			for _, name := range names {
				pos, err := f.engine.Position(m.ID, name)
				require.NoError(t, err)
				if pos.Claimed {
					continue
				}
				if info.Resolved {
					obligation += pos.Units(info.WinningOutcome())
				} else {
					// Pre-resolution either channel could win; the
					// aggregate is identical across channels.
					obligation += pos.YesUnits
				}
			}

			escrowBal := f.balance(t, escrow)
			require.GreaterOrEqual(t, escrowBal, resting+obligation+info.FeesAccrued,
				"escrow must cover refunds, payouts, and fees")
		}

		for i := 0; i < ops; i++ {
			trader := names[rng.Intn(traders)]

			switch op := rng.Intn(10); {
			case op < 6 && !resolved: // place
				side := domain.SideBuy
				if rng.Intn(2) == 0 {
					side = domain.SideSell
				}
				outcome := domain.OutcomeYes
				if rng.Intn(2) == 0 {
					outcome = domain.OutcomeNo
				}
				price := int64(rng.Intn(int(domain.MaxPriceBps))) + 1
				qty := int64(rng.Intn(500)) + 1

				o, _, err := f.engine.PlaceOrder(ctx, PlaceOrderParams{
					MarketID: m.ID, Trader: trader, Side: side,
					Outcome: outcome, Price: price, Quantity: qty,
				})
				if err == nil {
					placed = append(placed, o.ID)
				}
			case op < 8 && len(placed) > 0 && !resolved: // cancel
				id := placed[rng.Intn(len(placed))]
				o, err := f.engine.Order(m.ID, id)
				require.NoError(t, err)
				_, _ = f.engine.CancelOrder(ctx, m.ID, id, o.Trader)
			case op == 8 && !resolved && i > ops/2: // resolve
				f.clock.Advance(48 * time.Hour)
				require.NoError(t, f.board.Submit(reporter, m.QuestionID, rng.Intn(2) == 0, int64(rng.Intn(2))))
				_, err := f.engine.ResolveMarket(ctx, m.ID)
				require.NoError(t, err)
				resolved = true
			case resolved: // claim
				_, _ = f.engine.ClaimWinnings(ctx, m.ID, trader)
			}

			checkSolvency()
		}

		// Drain: resolve if not yet, cancel everything, claim everything,
		// withdraw fees. The escrow account must not go negative and must
		// still cover what remains.
		if !resolved {
			f.clock.Advance(48 * time.Hour)
			require.NoError(t, f.board.Submit(reporter, m.QuestionID, true, 0))
			_, err := f.engine.ResolveMarket(ctx, m.ID)
			require.NoError(t, err)
		}
		for _, id := range placed {
			o, err := f.engine.Order(m.ID, id)
			require.NoError(t, err)
			_, _ = f.engine.CancelOrder(ctx, m.ID, id, o.Trader)
		}
		for _, name := range names {
			_, _ = f.engine.ClaimWinnings(ctx, m.ID, name)
		}
		_, err := f.engine.WithdrawFees(ctx, m.ID, admin)
		require.NoError(t, err)

		checkSolvency()
		assert.GreaterOrEqual(t, f.balance(t, escrow), int64(0))
	}
}
