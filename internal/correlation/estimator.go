package correlation

import (
	"math"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

const (
	minSampleSize = 10
	maxSampleSize = 100
	minSignif     = 0.001
)

// HistorySource reports how many price observations exist for a market.
type HistorySource interface {
	HistoryLen(marketID string) int
}

// Estimator scores registry entries against the books fetched in a scan.
type Estimator struct {
	registry *Registry
	history  HistorySource
	now      func() time.Time
}

// NewEstimator creates an Estimator. history may be nil, in which case every
// sample size is the floor of 10.
func NewEstimator(registry *Registry, history HistorySource) *Estimator {
	return &Estimator{registry: registry, history: history, now: time.Now}
}

// Estimate builds the pair for a and b. It fails when the registry has no
// entry or when either market has no book in this scan.
func (e *Estimator) Estimate(a, b string, books map[string]domain.OrderBook) (domain.CorrelationPair, bool) {
	entry, ok := e.registry.Lookup(a, b)
	if !ok {
		return domain.CorrelationPair{}, false
	}
	if _, ok := books[a]; !ok {
		return domain.CorrelationPair{}, false
	}
	if _, ok := books[b]; !ok {
		return domain.CorrelationPair{}, false
	}

	n := 0
	if e.history != nil {
		n = e.history.HistoryLen(a)
	}
	n = max(minSampleSize, min(maxSampleSize, n))

	return domain.CorrelationPair{
		MarketA:      a,
		MarketB:      b,
		Correlation:  entry.Correlation,
		SampleSize:   n,
		Description:  entry.Description,
		Category:     entry.Category,
		Significance: math.Max(minSignif, 1-math.Abs(entry.Correlation)),
		ComputedAt:   e.now(),
	}, true
}

// EstimateAll scores every registry entry in registry order and skips the
// ones whose books are missing.
func (e *Estimator) EstimateAll(books map[string]domain.OrderBook) []domain.CorrelationPair {
	entries := e.registry.Entries()
	out := make([]domain.CorrelationPair, 0, len(entries))
	for _, entry := range entries {
		if p, ok := e.Estimate(entry.MarketA, entry.MarketB, books); ok {
			out = append(out, p)
		}
	}
	return out
}
