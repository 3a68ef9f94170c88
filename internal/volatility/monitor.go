// Package volatility keeps a bounded price history per market and raises a
// global high-volatility flag that pauses scanning.
package volatility

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

const (
	defaultHistorySize = 100
	defaultWindow      = 10
	defaultThreshold   = 0.5
)

// PricePoint records a single price observation at a point in time.
type PricePoint struct {
	Price float64
	Time  time.Time
}

// Config tunes a Monitor. ResetAfter of zero makes the flag sticky until
// Reset is called.
type Config struct {
	HistorySize int
	Window      int
	Threshold   float64
	ResetAfter  time.Duration
}

func (c Config) withDefaults() Config {
	if c.HistorySize <= 0 {
		c.HistorySize = defaultHistorySize
	}
	if c.Window <= 1 {
		c.Window = defaultWindow
	}
	if c.Threshold <= 0 {
		c.Threshold = defaultThreshold
	}
	return c
}

// Monitor tracks prices and the coefficient of variation over the most
// recent Window observations of each market.
type Monitor struct {
	cfg     Config
	cache   domain.Cache[float64]
	history map[string][]PricePoint
	logger  *slog.Logger
	now     func() time.Time

	mu          sync.RWMutex
	highVol     bool
	triggeredAt time.Time
}

// NewMonitor creates a Monitor that stores estimates in cache.
func NewMonitor(cfg Config, cache domain.Cache[float64], logger *slog.Logger) *Monitor {
	return &Monitor{
		cfg:     cfg.withDefaults(),
		cache:   cache,
		history: make(map[string][]PricePoint),
		logger:  logger.With(slog.String("component", "volatility")),
		now:     time.Now,
	}
}

// Record appends a price for marketID, keeping only the newest HistorySize
// points. Once Window points exist it recomputes the estimate, caches it and
// returns it. A zero window mean yields no estimate.
func (m *Monitor) Record(marketID string, price float64) (float64, bool) {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pts := append(m.history[marketID], PricePoint{Price: price, Time: m.now()})
	if over := len(pts) - m.cfg.HistorySize; over > 0 {
		pts = append(pts[:0:0], pts[over:]...)
	}
	m.history[marketID] = pts

	if len(pts) < m.cfg.Window {
		return 0, false
	}
	vol, ok := coefficientOfVariation(pts[len(pts)-m.cfg.Window:])
	if !ok {
		return 0, false
	}
	m.cache.Set(marketID, vol)

	if vol > m.cfg.Threshold {
		if !m.highVol {
			m.logger.Warn("high volatility detected",
				slog.String("market", marketID),
				slog.Float64("volatility", vol),
			)
		}
		m.highVol = true
		m.triggeredAt = m.now()
	}
	return vol, true
}

// coefficientOfVariation returns population stddev / mean.
func coefficientOfVariation(pts []PricePoint) (float64, bool) {
	var sum float64
	for _, p := range pts {
		sum += p.Price
	}
	mean := sum / float64(len(pts))
	if mean == 0 {
		return 0, false
	}

	var variance float64
	for _, p := range pts {
		d := p.Price - mean
		variance += d * d
	}
	variance /= float64(len(pts))
	return math.Sqrt(variance) / mean, true
}

// Volatility returns the cached estimate for marketID, if still fresh.
func (m *Monitor) Volatility(marketID string) (float64, bool) {
	return m.cache.Get(marketID)
}

// History returns a copy of the stored points for marketID.
func (m *Monitor) History(marketID string) []PricePoint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.history[marketID]
	if len(src) == 0 {
		return nil
	}
	out := make([]PricePoint, len(src))
	copy(out, src)
	return out
}

// HistoryLen returns the number of stored points for marketID.
func (m *Monitor) HistoryLen(marketID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.history[marketID])
}

// HighVolatility reports the global flag. With ResetAfter set, a flag older
// than ResetAfter clears itself here.
func (m *Monitor) HighVolatility() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.highVol && m.cfg.ResetAfter > 0 && m.now().Sub(m.triggeredAt) >= m.cfg.ResetAfter {
		m.highVol = false
		m.logger.Info("high volatility mode expired",
			slog.Time("triggered_at", m.triggeredAt),
		)
	}
	return m.highVol
}

// TriggeredAt returns when the flag was last raised.
func (m *Monitor) TriggeredAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.triggeredAt
}

// Reset clears the high-volatility flag.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.highVol = false
}

// ClearCache drops all cached estimates. History is kept.
func (m *Monitor) ClearCache() {
	m.cache.Clear()
}

// CacheStats exposes the estimate cache counters.
func (m *Monitor) CacheStats() domain.CacheStats {
	return m.cache.Stats()
}
