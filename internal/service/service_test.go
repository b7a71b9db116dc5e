package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictd/internal/domain"
	"github.com/alanyoungcy/predictd/internal/engine"
	"github.com/alanyoungcy/predictd/internal/ledger"
	"github.com/alanyoungcy/predictd/internal/oracle"
)

const (
	adminAddr    = "0x1111111111111111111111111111111111111111"
	aliceAddr    = "0x2222222222222222222222222222222222222222"
	bobAddr      = "0x3333333333333333333333333333333333333333"
	reporterAddr = "0x4444444444444444444444444444444444444444"
)

// In-memory fakes for the store and cache interfaces.

type memMarketStore struct {
	mu      sync.Mutex
	markets map[string]domain.Market
}

func newMemMarketStore() *memMarketStore {
	return &memMarketStore{markets: make(map[string]domain.Market)}
}

func (s *memMarketStore) Upsert(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[m.ID] = m
	return nil
}

func (s *memMarketStore) GetByID(_ context.Context, id string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *memMarketStore) ListOpen(_ context.Context, _ domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, m := range s.markets {
		if !m.Resolved {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memMarketStore) ListExpiredUnresolved(_ context.Context, asOf time.Time) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, m := range s.markets {
		if !m.Resolved && !m.Deadline.After(asOf) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memMarketStore) List(_ context.Context, _ domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Market, 0, len(s.markets))
	for _, m := range s.markets {
		out = append(out, m)
	}
	return out, nil
}

type memOrderStore struct {
	mu     sync.Mutex
	orders map[string]domain.Order
}

func newMemOrderStore() *memOrderStore {
	return &memOrderStore{orders: make(map[string]domain.Order)}
}

func (s *memOrderStore) Create(_ context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
	return nil
}

func (s *memOrderStore) Update(_ context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; !ok {
		return domain.ErrNotFound
	}
	s.orders[o.ID] = o
	return nil
}

func (s *memOrderStore) GetByID(_ context.Context, _, id string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (s *memOrderStore) ListByMarket(_ context.Context, marketID string, _ domain.ListOpts) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.MarketID == marketID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *memOrderStore) ListByTrader(_ context.Context, trader string, _ domain.ListOpts) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.Trader == trader {
			out = append(out, o)
		}
	}
	return out, nil
}

type memPositionStore struct {
	mu        sync.Mutex
	positions map[string]domain.Position
}

func newMemPositionStore() *memPositionStore {
	return &memPositionStore{positions: make(map[string]domain.Position)}
}

func (s *memPositionStore) Upsert(_ context.Context, p domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[p.MarketID+"/"+p.Trader] = p
	return nil
}

func (s *memPositionStore) Get(_ context.Context, marketID, trader string) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[marketID+"/"+trader]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *memPositionStore) ListByTrader(_ context.Context, trader string) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, p := range s.positions {
		if p.Trader == trader {
			out = append(out, p)
		}
	}
	return out, nil
}

type memTradeStore struct {
	mu     sync.Mutex
	trades []domain.Trade
}

func (s *memTradeStore) InsertBatch(_ context.Context, trades []domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, trades...)
	return nil
}

func (s *memTradeStore) ListByMarket(_ context.Context, marketID string, _ domain.ListOpts) ([]domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Trade
	for _, t := range s.trades {
		if t.MarketID == marketID {
			out = append(out, t)
		}
	}
	return out, nil
}

type memAuditStore struct {
	mu     sync.Mutex
	events []string
}

func (s *memAuditStore) Log(_ context.Context, event string, _ map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *memAuditStore) List(_ context.Context, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type memBookCache struct {
	mu    sync.Mutex
	snaps map[string]domain.BookSnapshot
}

func newMemBookCache() *memBookCache {
	return &memBookCache{snaps: make(map[string]domain.BookSnapshot)}
}

func (c *memBookCache) SetSnapshot(_ context.Context, snap domain.BookSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps[snap.MarketID+"/"+string(snap.Outcome)] = snap
	return nil
}

func (c *memBookCache) GetSnapshot(_ context.Context, marketID string, outcome domain.Outcome) (domain.BookSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.snaps[marketID+"/"+string(outcome)]
	if !ok {
		return domain.BookSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

type memPriceCache struct {
	mu     sync.Mutex
	prices map[string]int64
}

func newMemPriceCache() *memPriceCache {
	return &memPriceCache{prices: make(map[string]int64)}
}

func (c *memPriceCache) SetPrice(_ context.Context, marketID string, outcome domain.Outcome, priceBps int64, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[marketID+"/"+string(outcome)] = priceBps
	return nil
}

func (c *memPriceCache) GetPrice(_ context.Context, marketID string, outcome domain.Outcome) (int64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.prices[marketID+"/"+string(outcome)]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return p, time.Time{}, nil
}

// countingLimiter allows the first n calls per key, then denies.
type countingLimiter struct {
	mu    sync.Mutex
	max   int
	calls map[string]int
}

func newCountingLimiter(max int) *countingLimiter {
	return &countingLimiter{max: max, calls: make(map[string]int)}
}

func (l *countingLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[key]++
	return l.calls[key] <= l.max, nil
}

type recordBus struct {
	mu       sync.Mutex
	messages map[string][][]byte
}

func newRecordBus() *recordBus {
	return &recordBus{messages: make(map[string][][]byte)}
}

func (b *recordBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[channel] = append(b.messages[channel], payload)
	return nil
}

func (b *recordBus) Subscribe(_ context.Context, _ string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

type fixture struct {
	svc       *MarketService
	ledger    *ledger.MemLedger
	board     *oracle.Board
	markets   *memMarketStore
	orders    *memOrderStore
	positions *memPositionStore
	trades    *memTradeStore
	audit     *memAuditStore
	books     *memBookCache
	prices    *memPriceCache
	bus       *recordBus
	limiter   *countingLimiter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	led := ledger.NewMemLedger()
	for _, acct := range []string{adminAddr, aliceAddr, bobAddr} {
		led.Mint(acct, 1_000_000)
	}

	board := oracle.NewBoard(reporterAddr)
	eng := engine.New(engine.Config{
		MinOrderSize:  1,
		FeeRateBps:    200,
		QuestionFee:   100,
		Admin:         adminAddr,
		EscrowAccount: "escrow",
		OracleAccount: "oracle",
	}, led, board, nil)

	f := &fixture{
		ledger:    led,
		board:     board,
		markets:   newMemMarketStore(),
		orders:    newMemOrderStore(),
		positions: newMemPositionStore(),
		trades:    &memTradeStore{},
		audit:     &memAuditStore{},
		books:     newMemBookCache(),
		prices:    newMemPriceCache(),
		bus:       newRecordBus(),
		limiter:   newCountingLimiter(100),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewMarketService(
		eng,
		f.markets, f.orders, f.positions, f.trades, f.audit,
		f.books, f.prices, f.limiter, f.bus,
		logger,
	)
	return f
}

func (f *fixture) createMarket(t *testing.T) domain.Market {
	t.Helper()
	m, err := f.svc.CreateMarket(context.Background(), aliceAddr,
		"Will it rain tomorrow?", time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	return m
}

func TestCreateMarket_PersistsAndPublishes(t *testing.T) {
	f := newFixture(t)
	m := f.createMarket(t)

	stored, err := f.markets.GetByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Question, stored.Question)

	assert.Len(t, f.bus.messages[ChannelMarket], 1)
	assert.Contains(t, f.audit.events, "market_created")
}

func TestCreateMarket_RejectsBadAddress(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateMarket(context.Background(), "not-an-address",
		"Will it rain?", time.Now().UTC().Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)
}

func TestPlaceOrder_WriteBehindAndEvents(t *testing.T) {
	f := newFixture(t)
	m := f.createMarket(t)
	ctx := context.Background()

	maker, _, err := f.svc.PlaceOrder(ctx, engine.PlaceOrderParams{
		MarketID: m.ID, Trader: bobAddr,
		Side: domain.SideSell, Outcome: domain.OutcomeYes,
		Price: 5000, Quantity: 10,
	})
	require.NoError(t, err)

	taker, trades, err := f.svc.PlaceOrder(ctx, engine.PlaceOrderParams{
		MarketID: m.ID, Trader: aliceAddr,
		Side: domain.SideBuy, Outcome: domain.OutcomeYes,
		Price: 6000, Quantity: 10,
	})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, int64(5000), trades[0].Price)

	// Both orders persisted, the maker with its fill applied.
	storedMaker, err := f.orders.GetByID(ctx, m.ID, maker.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), storedMaker.Filled)
	_, err = f.orders.GetByID(ctx, m.ID, taker.ID)
	require.NoError(t, err)

	// Positions for both sides persisted.
	buyerPos, err := f.positions.Get(ctx, m.ID, aliceAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(10), buyerPos.YesUnits)
	sellerPos, err := f.positions.Get(ctx, m.ID, bobAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(10), sellerPos.NoUnits)

	// Trade history and events.
	hist, err := f.svc.Trades(ctx, m.ID, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, hist, 1)
	assert.Len(t, f.bus.messages[ChannelTrade], 1)

	// Market volume write-behind.
	storedMarket, err := f.markets.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), storedMarket.YesVolume)
}

func TestPlaceOrder_RateLimited(t *testing.T) {
	f := newFixture(t)
	m := f.createMarket(t)
	f.limiter.max = 1
	ctx := context.Background()

	_, _, err := f.svc.PlaceOrder(ctx, engine.PlaceOrderParams{
		MarketID: m.ID, Trader: aliceAddr,
		Side: domain.SideBuy, Outcome: domain.OutcomeYes,
		Price: 5000, Quantity: 5,
	})
	require.NoError(t, err)

	_, _, err = f.svc.PlaceOrder(ctx, engine.PlaceOrderParams{
		MarketID: m.ID, Trader: aliceAddr,
		Side: domain.SideBuy, Outcome: domain.OutcomeYes,
		Price: 5000, Quantity: 5,
	})
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestCancelOrder_PersistsCancellation(t *testing.T) {
	f := newFixture(t)
	m := f.createMarket(t)
	ctx := context.Background()

	order, _, err := f.svc.PlaceOrder(ctx, engine.PlaceOrderParams{
		MarketID: m.ID, Trader: aliceAddr,
		Side: domain.SideBuy, Outcome: domain.OutcomeNo,
		Price: 4000, Quantity: 8,
	})
	require.NoError(t, err)

	cancelled, err := f.svc.CancelOrder(ctx, m.ID, order.ID, aliceAddr)
	require.NoError(t, err)
	assert.True(t, cancelled.Cancelled)

	stored, err := f.orders.GetByID(ctx, m.ID, order.ID)
	require.NoError(t, err)
	assert.True(t, stored.Cancelled)
	assert.Contains(t, f.audit.events, "order_cancelled")
}

func TestResolveAndClaim_FullFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.svc.CreateMarket(ctx, aliceAddr,
		"Will the launch succeed?", time.Now().UTC().Add(200*time.Millisecond))
	require.NoError(t, err)

	_, _, err = f.svc.PlaceOrder(ctx, engine.PlaceOrderParams{
		MarketID: m.ID, Trader: bobAddr,
		Side: domain.SideSell, Outcome: domain.OutcomeYes,
		Price: 5000, Quantity: 10,
	})
	require.NoError(t, err)
	_, _, err = f.svc.PlaceOrder(ctx, engine.PlaceOrderParams{
		MarketID: m.ID, Trader: aliceAddr,
		Side: domain.SideBuy, Outcome: domain.OutcomeYes,
		Price: 5000, Quantity: 10,
	})
	require.NoError(t, err)

	require.NoError(t, f.board.Submit(reporterAddr, m.QuestionID, true, 1))
	time.Sleep(250 * time.Millisecond)

	resolved, err := f.svc.Resolve(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, resolved.Resolved)
	assert.Len(t, f.bus.messages[ChannelResolution], 1)

	payout, err := f.svc.Claim(ctx, m.ID, aliceAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(10), payout)

	storedPos, err := f.positions.Get(ctx, m.ID, aliceAddr)
	require.NoError(t, err)
	assert.True(t, storedPos.Claimed)

	_, err = f.svc.Claim(ctx, m.ID, bobAddr)
	assert.ErrorIs(t, err, domain.ErrNoWinningPosition)
}

func TestWithdrawFees_AdminOnly(t *testing.T) {
	f := newFixture(t)
	m := f.createMarket(t)
	ctx := context.Background()

	_, _, err := f.svc.PlaceOrder(ctx, engine.PlaceOrderParams{
		MarketID: m.ID, Trader: bobAddr,
		Side: domain.SideSell, Outcome: domain.OutcomeYes,
		Price: 5000, Quantity: 100,
	})
	require.NoError(t, err)
	_, _, err = f.svc.PlaceOrder(ctx, engine.PlaceOrderParams{
		MarketID: m.ID, Trader: aliceAddr,
		Side: domain.SideBuy, Outcome: domain.OutcomeYes,
		Price: 5000, Quantity: 100,
	})
	require.NoError(t, err)

	_, err = f.svc.WithdrawFees(ctx, m.ID, aliceAddr)
	assert.ErrorIs(t, err, domain.ErrNotAdmin)

	amount, err := f.svc.WithdrawFees(ctx, m.ID, adminAddr)
	require.NoError(t, err)
	// 200 bps on 100 units.
	assert.Equal(t, int64(2), amount)
	assert.Contains(t, f.audit.events, "fees_withdrawn")
}

func TestSyncBooks_PopulatesCaches(t *testing.T) {
	f := newFixture(t)
	m := f.createMarket(t)
	ctx := context.Background()

	_, _, err := f.svc.PlaceOrder(ctx, engine.PlaceOrderParams{
		MarketID: m.ID, Trader: aliceAddr,
		Side: domain.SideBuy, Outcome: domain.OutcomeYes,
		Price: 4000, Quantity: 5,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.SyncBooks(ctx))

	snap, err := f.books.GetSnapshot(ctx, m.ID, domain.OutcomeYes)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), snap.BestBid)

	price, _, err := f.prices.GetPrice(ctx, m.ID, domain.OutcomeYes)
	require.NoError(t, err)
	assert.Equal(t, domain.NeutralPriceBps, price)
}

func TestSweepExpired_ResolvesAnsweredMarkets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.svc.CreateMarket(ctx, aliceAddr,
		"Will the vote pass?", time.Now().UTC().Add(50*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, f.board.Submit(reporterAddr, m.QuestionID, false, 0))

	time.Sleep(100 * time.Millisecond)
	f.svc.SweepExpired(ctx)

	resolved, err := f.svc.Market(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, resolved.Resolved)
	assert.Equal(t, domain.OutcomeNo, resolved.WinningOutcome())
}
