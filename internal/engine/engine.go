// Package engine wires the scan pipeline and the execution coordinator
// behind a small facade and drives them from a polling loop.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/polyarb/internal/arbitrage"
	"github.com/alanyoungcy/polyarb/internal/cache/memory"
	"github.com/alanyoungcy/polyarb/internal/correlation"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/executor"
	"github.com/alanyoungcy/polyarb/internal/orderbook"
	"github.com/alanyoungcy/polyarb/internal/volatility"
	"github.com/shopspring/decimal"
)

// Notification event names emitted by the loop.
const (
	EventDetected       = "arb_detected"
	EventHighVolatility = "high_volatility"
	EventHalted         = "trading_halted"
)

// Config carries every engine tunable.
type Config struct {
	PollInterval      time.Duration
	HaltBackoff       time.Duration
	VolatilityBackoff time.Duration
	AutoExecute       bool

	CorrelationThreshold float64
	Notional             float64
	SlippageEstimate     float64
	Filter               arbitrage.FilterConfig

	OrderSize       decimal.Decimal
	FetchBatchSize  int
	BookCacheSize   int
	BookCacheTTL    time.Duration
	VolatilityTTL   time.Duration
	VolatilityReset time.Duration
	DefaultDays     float64
	AlertDedupTTL   time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:         30 * time.Second,
		HaltBackoff:          60 * time.Second,
		VolatilityBackoff:    300 * time.Second,
		CorrelationThreshold: 0.8,
		Notional:             100,
		SlippageEstimate:     0.005,
		Filter:               arbitrage.DefaultFilterConfig(),
		OrderSize:            decimal.NewFromInt(10),
		FetchBatchSize:       10,
		BookCacheSize:        1000,
		BookCacheTTL:         60 * time.Second,
		VolatilityTTL:        time.Hour,
		DefaultDays:          90,
		AlertDedupTTL:        5 * time.Minute,
	}
}

// Deps are the external collaborators. Market and Breaker are required.
type Deps struct {
	Market   domain.MarketDataClient
	Breaker  domain.CircuitBreaker
	Notifier domain.Notifier
	Expiry   domain.ExpiryLookup
	Locks    domain.LockManager
	Journals []domain.ArbJournal
}

type clearer interface {
	Clear()
}

// Engine is the facade over scanning and execution.
type Engine struct {
	cfg      Config
	registry *correlation.Registry
	deps     Deps

	estimator   *correlation.Estimator
	acquirer    *orderbook.Acquirer
	volatility  *volatility.Monitor
	decay       *arbitrage.DecayModel
	detector    *arbitrage.Detector
	filter      *arbitrage.RiskFilter
	coordinator *executor.Coordinator

	books    *memory.Cache[domain.OrderBook]
	vols     *memory.Cache[float64]
	opps     *memory.Cache[domain.ArbitrageOpportunity]
	endDates *memory.Cache[time.Time]
	caches   []clearer

	stats   *Statistics
	lastMu  sync.RWMutex
	last    []domain.ArbitrageOpportunity
	scanMu  sync.Mutex
	stepMu  sync.Mutex
	enabled atomic.Bool
	logger  *slog.Logger
	now     func() time.Time
}

// New builds an Engine and all of its components.
func New(cfg Config, registry *correlation.Registry, deps Deps, logger *slog.Logger) (*Engine, error) {
	if deps.Market == nil {
		return nil, fmt.Errorf("engine: market data client is required")
	}
	if deps.Breaker == nil {
		return nil, fmt.Errorf("engine: circuit breaker is required")
	}
	if registry == nil {
		registry = correlation.DefaultRegistry()
	}

	e := &Engine{
		cfg:      cfg,
		registry: registry,
		deps:     deps,
		logger:   logger.With(slog.String("component", "engine")),
		now:      time.Now,
	}
	e.stats = newStatistics(e.now())

	e.books = memory.New[domain.OrderBook](memory.Config{MaxSize: cfg.BookCacheSize, TTL: cfg.BookCacheTTL})
	e.vols = memory.New[float64](memory.Config{MaxSize: cfg.BookCacheSize, TTL: cfg.VolatilityTTL})
	e.opps = memory.New[domain.ArbitrageOpportunity](memory.Config{MaxSize: cfg.BookCacheSize, TTL: cfg.AlertDedupTTL})
	e.endDates = memory.New[time.Time](memory.Config{MaxSize: cfg.BookCacheSize, TTL: 6 * time.Hour})
	e.caches = []clearer{e.books, e.vols, e.opps, e.endDates}

	e.volatility = volatility.NewMonitor(volatility.Config{ResetAfter: cfg.VolatilityReset}, e.vols, logger)
	e.estimator = correlation.NewEstimator(registry, e.volatility)
	e.acquirer = orderbook.NewAcquirer(deps.Market, e.books, registry.Markets, cfg.FetchBatchSize, logger)
	e.decay = arbitrage.NewDecayModel(deps.Expiry, e.endDates, cfg.DefaultDays, logger)
	e.detector = arbitrage.NewDetector(arbitrage.DetectorConfig{
		CorrelationThreshold: cfg.CorrelationThreshold,
		Notional:             cfg.Notional,
		SlippageEstimate:     cfg.SlippageEstimate,
	}, e.decay, logger)

	filterCfg := cfg.Filter
	filterCfg.Notional = cfg.Notional
	e.filter = arbitrage.NewRiskFilter(filterCfg, e.volatility, logger)

	e.coordinator = executor.NewCoordinator(executor.Config{OrderSize: cfg.OrderSize},
		deps.Market, e.filter, deps.Breaker, deps.Notifier, e.stats, logger)
	if deps.Locks != nil {
		e.coordinator.SetLockManager(deps.Locks)
	}
	for _, j := range deps.Journals {
		e.coordinator.AddJournal(j)
	}

	e.enabled.Store(true)
	return e, nil
}

// ScanForOpportunities runs one full scan and returns the opportunities that
// pass the risk filter, in registry order. Scans are serialised; a failure
// anywhere yields an empty list.
func (e *Engine) ScanForOpportunities(ctx context.Context) (opps []domain.ArbitrageOpportunity) {
	e.scanMu.Lock()
	defer e.scanMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("scan failed", slog.Any("panic", r))
			opps = nil
		}
	}()

	start := e.now()
	books := e.acquirer.Fetch(ctx, nil)
	for id, b := range books {
		if ask, ok := b.BestAsk(); ok {
			e.volatility.Record(id, ask.Price.InexactFloat64())
		}
	}

	pairs := e.estimator.EstimateAll(books)
	for _, o := range e.detector.Identify(ctx, pairs, books) {
		if e.filter.Passes(o) {
			opps = append(opps, o)
		}
	}

	e.stats.recordScan(e.now(), len(opps))
	e.lastMu.Lock()
	e.last = append([]domain.ArbitrageOpportunity(nil), opps...)
	e.lastMu.Unlock()
	e.logger.Info("scan complete",
		slog.Int("books", len(books)),
		slog.Int("pairs", len(pairs)),
		slog.Int("opportunities", len(opps)),
		slog.Duration("elapsed", e.now().Sub(start)),
	)
	return opps
}

// Execute runs opp through the coordinator and reports whether every leg
// was placed.
func (e *Engine) Execute(ctx context.Context, opp domain.ArbitrageOpportunity) bool {
	return e.coordinator.Execute(ctx, opp).Succeeded()
}

// ExecuteDetailed is Execute returning the full result.
func (e *Engine) ExecuteDetailed(ctx context.Context, opp domain.ArbitrageOpportunity) domain.ExecutionResult {
	return e.coordinator.Execute(ctx, opp)
}

// Statistics returns a snapshot of the counters and cache stats.
func (e *Engine) Statistics() domain.EngineStatistics {
	s := e.stats.snapshot()
	s.HighVolatility = e.volatility.HighVolatility()
	s.HighVolatilitySince = e.volatility.TriggeredAt()
	s.Caches = map[string]domain.CacheStats{
		"order_books":   e.books.Stats(),
		"volatility":    e.vols.Stats(),
		"opportunities": e.opps.Stats(),
		"end_dates":     e.endDates.Stats(),
	}
	return s
}

// LastOpportunities returns the opportunities of the most recent completed
// scan.
func (e *Engine) LastOpportunities() []domain.ArbitrageOpportunity {
	e.lastMu.RLock()
	defer e.lastMu.RUnlock()
	return append([]domain.ArbitrageOpportunity(nil), e.last...)
}

// Shutdown stops the monitoring loop after its current step and clears all
// caches.
func (e *Engine) Shutdown() {
	e.enabled.Store(false)
	e.stepMu.Lock()
	defer e.stepMu.Unlock()
	for _, c := range e.caches {
		c.Clear()
	}
	e.lastMu.Lock()
	e.last = nil
	e.lastMu.Unlock()
	e.logger.Info("engine shut down")
}

// ResetVolatility clears the high-volatility flag.
func (e *Engine) ResetVolatility() {
	e.volatility.Reset()
}

// best returns the opportunity with the largest expected profit. Ties keep
// registry order.
func best(opps []domain.ArbitrageOpportunity) domain.ArbitrageOpportunity {
	ranked := make([]domain.ArbitrageOpportunity, len(opps))
	copy(ranked, opps)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].ExpectedProfit > ranked[j].ExpectedProfit
	})
	return ranked[0]
}
