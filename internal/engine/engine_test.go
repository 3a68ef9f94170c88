package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/polyarb/internal/correlation"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeMarket struct {
	mu     sync.Mutex
	books  map[string]domain.OrderBook
	fetch  int
	orders []string
	fail   map[string]bool
}

func (m *fakeMarket) GetOrderBook(_ context.Context, id string) (domain.OrderBook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetch++
	b, ok := m.books[id]
	if !ok {
		return domain.OrderBook{}, domain.ErrNotFound
	}
	return b, nil
}

func (m *fakeMarket) PlaceOrder(_ context.Context, id string, _ domain.OrderSide, _, _ decimal.Decimal) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[id] {
		return "", errors.New("order rejected")
	}
	m.orders = append(m.orders, id)
	return "ord-" + id, nil
}

func (m *fakeMarket) WalletAddress() string { return "0xabc" }

func (m *fakeMarket) fetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetch
}

func (m *fakeMarket) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

type fakeBreaker struct {
	mu      sync.Mutex
	halt    *domain.HaltDecision
	results []bool
}

func (b *fakeBreaker) CheckTradeAllowed(context.Context, string) *domain.HaltDecision {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.halt
}

func (b *fakeBreaker) RecordTradeResult(_ context.Context, success bool, _ string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.results = append(b.results, success)
}

func (b *fakeBreaker) RecordProfit(context.Context, float64) {}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *fakeNotifier) has(event string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e == event {
			return true
		}
	}
	return false
}

type fakeJournal struct {
	mu   sync.Mutex
	opps int
	exec int
}

func (j *fakeJournal) RecordOpportunity(context.Context, domain.ArbitrageOpportunity) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.opps++
	return nil
}

func (j *fakeJournal) RecordExecution(context.Context, domain.ExecutionResult) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.exec++
	return nil
}

func askBook(id, price, size string) domain.OrderBook {
	return domain.OrderBook{
		MarketID: id,
		Asks: []domain.OrderBookEntry{{
			Price: decimal.RequireFromString(price),
			Size:  decimal.RequireFromString(size),
		}},
	}
}

type fixture struct {
	engine   *Engine
	market   *fakeMarket
	breaker  *fakeBreaker
	notifier *fakeNotifier
	journal  *fakeJournal
}

func newFixture(t *testing.T, corr float64, size string, mutate func(*Config)) *fixture {
	t.Helper()
	reg, err := correlation.NewRegistry([]correlation.Entry{
		{MarketA: "A", MarketB: "B", Correlation: corr, Category: "politics"},
	})
	require.NoError(t, err)

	f := &fixture{
		market: &fakeMarket{books: map[string]domain.OrderBook{
			"A": askBook("A", "0.45", size),
			"B": askBook("B", "0.50", size),
		}},
		breaker:  &fakeBreaker{},
		notifier: &fakeNotifier{},
		journal:  &fakeJournal{},
	}
	cfg := DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.HaltBackoff = 5 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}
	f.engine, err = New(cfg, reg, Deps{
		Market:   f.market,
		Breaker:  f.breaker,
		Notifier: f.notifier,
		Journals: []domain.ArbJournal{f.journal},
	}, testLogger)
	require.NoError(t, err)
	return f
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(DefaultConfig(), nil, Deps{Breaker: &fakeBreaker{}}, testLogger)
	assert.Error(t, err)
	_, err = New(DefaultConfig(), nil, Deps{Market: &fakeMarket{}}, testLogger)
	assert.Error(t, err)
}

func TestScanFindsOpportunity(t *testing.T) {
	f := newFixture(t, 0.95, "30000", nil)

	opps := f.engine.ScanForOpportunities(context.Background())
	require.Len(t, opps, 1)
	assert.InDelta(t, 0.95, opps[0].TotalCost, 1e-12)
	assert.InDelta(t, 0.0526315789, opps[0].Edge, 1e-9)
	assert.InDelta(t, 60000, opps[0].Liquidity, 1e-9)

	st := f.engine.Statistics()
	assert.Equal(t, int64(1), st.OpportunitiesDetected)
	assert.Equal(t, int64(1), st.ScansCompleted)
	assert.Equal(t, 2, st.Caches["order_books"].Size)
	assert.NotContains(t, st.Caches, "correlations")

	last := f.engine.LastOpportunities()
	require.Len(t, last, 1)
	assert.Equal(t, opps[0].ID, last[0].ID)
}

func TestScanBelowCorrelationThreshold(t *testing.T) {
	f := newFixture(t, 0.70, "30000", nil)
	assert.Empty(t, f.engine.ScanForOpportunities(context.Background()))
}

func TestScanRejectsThinLiquidity(t *testing.T) {
	f := newFixture(t, 0.95, "5000", nil)
	assert.Empty(t, f.engine.ScanForOpportunities(context.Background()))
	assert.Zero(t, f.engine.Statistics().OpportunitiesDetected)
}

func TestScanToleratesMissingBooks(t *testing.T) {
	f := newFixture(t, 0.95, "30000", nil)
	delete(f.market.books, "B")
	assert.Empty(t, f.engine.ScanForOpportunities(context.Background()))
	assert.Equal(t, int64(1), f.engine.Statistics().ScansCompleted)
}

func TestExecuteUpdatesStatistics(t *testing.T) {
	f := newFixture(t, 0.95, "30000", nil)
	opps := f.engine.ScanForOpportunities(context.Background())
	require.Len(t, opps, 1)

	assert.True(t, f.engine.Execute(context.Background(), opps[0]))
	st := f.engine.Statistics()
	assert.Equal(t, int64(1), st.ArbitragesExecuted)
	assert.InDelta(t, opps[0].ExpectedProfit, st.TotalProfit, 1e-9)
	assert.Equal(t, []bool{true}, f.breaker.results)
	assert.Equal(t, 1, f.journal.exec)
}

func TestExecuteHaltedLeavesStatistics(t *testing.T) {
	f := newFixture(t, 0.95, "30000", nil)
	opps := f.engine.ScanForOpportunities(context.Background())
	require.Len(t, opps, 1)

	before := f.engine.Statistics()
	f.breaker.halt = &domain.HaltDecision{Reason: "max daily loss"}

	assert.False(t, f.engine.Execute(context.Background(), opps[0]))
	after := f.engine.Statistics()
	assert.Equal(t, before.ArbitragesExecuted, after.ArbitragesExecuted)
	assert.Equal(t, before.TotalProfit, after.TotalProfit)
	assert.Equal(t, before.PartialFills, after.PartialFills)
	assert.Equal(t, before.FailedExecutions, after.FailedExecutions)
	assert.Zero(t, f.market.orderCount())
}

func TestExecutePartialCounted(t *testing.T) {
	f := newFixture(t, 0.95, "30000", nil)
	opps := f.engine.ScanForOpportunities(context.Background())
	require.Len(t, opps, 1)
	f.market.fail = map[string]bool{"B": true}

	res := f.engine.ExecuteDetailed(context.Background(), opps[0])
	assert.Equal(t, domain.ExecPartial, res.Status)
	st := f.engine.Statistics()
	assert.Equal(t, int64(1), st.PartialFills)
	assert.Greater(t, res.FilledCost(), 0.0)
	assert.InDelta(t, res.FilledCost(), st.TotalLoss, 1e-9)
	assert.Zero(t, st.TotalProfit)
	assert.True(t, f.notifier.has("arb_partial"))
}

func TestShutdownStopsLoopAndClearsCaches(t *testing.T) {
	f := newFixture(t, 0.95, "30000", nil)

	done := make(chan error, 1)
	go func() { done <- f.engine.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		return f.engine.Statistics().ScansCompleted >= 1
	}, time.Second, 5*time.Millisecond)

	f.engine.Shutdown()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after Shutdown")
	}

	st := f.engine.Statistics()
	for name, c := range st.Caches {
		assert.Zero(t, c.Size, name)
	}
	assert.Empty(t, f.engine.LastOpportunities())
}

func TestRunReturnsOnCancel(t *testing.T) {
	f := newFixture(t, 0.95, "30000", func(c *Config) { c.PollInterval = time.Hour })
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.engine.Run(ctx) }()
	require.Eventually(t, func() bool {
		return f.engine.Statistics().ScansCompleted == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("loop ignored cancellation")
	}
	assert.True(t, f.notifier.has(EventDetected))
	assert.Equal(t, 1, f.journal.opps)
}

func TestRunAutoExecutes(t *testing.T) {
	f := newFixture(t, 0.95, "30000", func(c *Config) { c.AutoExecute = true })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go f.engine.Run(ctx)
	require.Eventually(t, func() bool {
		return f.engine.Statistics().ArbitragesExecuted >= 1
	}, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, f.market.orderCount(), 2)
}

func TestRunBacksOffWhenHalted(t *testing.T) {
	f := newFixture(t, 0.95, "30000", nil)
	f.breaker.halt = &domain.HaltDecision{Reason: "cooldown"}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := f.engine.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, f.market.fetchCount())
}

func TestRunPausesOnHighVolatility(t *testing.T) {
	f := newFixture(t, 0.95, "30000", func(c *Config) { c.VolatilityBackoff = time.Hour })
	for i := 0; i < 10; i++ {
		f.engine.volatility.Record("A", []float64{0.1, 0.9}[i%2])
	}
	require.True(t, f.engine.Statistics().HighVolatility)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.engine.Run(ctx), context.DeadlineExceeded)
	assert.Zero(t, f.market.fetchCount())
	assert.True(t, f.notifier.has(EventHighVolatility))

	f.engine.ResetVolatility()
	assert.False(t, f.engine.Statistics().HighVolatility)
}

func TestBestPicksHighestExpectedProfit(t *testing.T) {
	opps := []domain.ArbitrageOpportunity{
		{ID: "a", ExpectedProfit: 1},
		{ID: "b", ExpectedProfit: 3},
		{ID: "c", ExpectedProfit: 3},
	}
	assert.Equal(t, "b", best(opps).ID)
}
