package domain

import (
	"strings"
	"time"
)

// CorrelationPair is a scored belief that two markets resolve together. It is
// built fresh on every scan and never mutated afterwards.
type CorrelationPair struct {
	MarketA      string
	MarketB      string
	Correlation  float64 // [-1, 1]
	SampleSize   int     // >= 10
	Description  string
	Category     string
	Significance float64 // (0, 1], placeholder proxy, not a p-value
	ComputedAt   time.Time
}

// Key returns the order-independent identifier of the pair.
func (p CorrelationPair) Key() string {
	return PairKey(p.MarketA, p.MarketB)
}

// PairKey joins two market ids in lexical order so (a, b) and (b, a) map to
// the same key.
func PairKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + "|" + b
}
