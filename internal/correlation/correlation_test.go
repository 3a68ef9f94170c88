package correlation

import (
	"testing"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedHistory map[string]int

func (h fixedHistory) HistoryLen(id string) int { return h[id] }

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry([]Entry{
		{MarketA: "a", MarketB: "b", Correlation: 0.95, Category: "politics", Description: "a implies b"},
		{MarketA: "c", MarketB: "a", Correlation: -0.4, Category: "macro"},
		{MarketA: "d", MarketB: "e", Correlation: 1.0},
	})
	require.NoError(t, err)
	return r
}

func TestRegistryLookupEitherOrder(t *testing.T) {
	r := testRegistry(t)

	e1, ok := r.Lookup("a", "b")
	require.True(t, ok)
	e2, ok := r.Lookup("b", "a")
	require.True(t, ok)
	assert.Equal(t, e1, e2)

	_, ok = r.Lookup("b", "c")
	assert.False(t, ok)
}

func TestRegistryMarketsInOrder(t *testing.T) {
	r := testRegistry(t)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, r.Markets())
	assert.Equal(t, 3, r.Len())
}

func TestNewRegistryValidation(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
	}{
		{"empty id", []Entry{{MarketA: "", MarketB: "b", Correlation: 0.9}}},
		{"self pair", []Entry{{MarketA: "a", MarketB: "a", Correlation: 0.9}}},
		{"out of range", []Entry{{MarketA: "a", MarketB: "b", Correlation: 1.2}}},
		{"duplicate reversed", []Entry{
			{MarketA: "a", MarketB: "b", Correlation: 0.9},
			{MarketA: "b", MarketB: "a", Correlation: 0.8},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.entries)
			assert.Error(t, err)
		})
	}
}

func TestDefaultRegistryIsValid(t *testing.T) {
	r := DefaultRegistry()
	require.NotNil(t, r)
	assert.Positive(t, r.Len())
}

func TestEstimateRequiresBothBooks(t *testing.T) {
	est := NewEstimator(testRegistry(t), nil)
	books := map[string]domain.OrderBook{"a": {MarketID: "a"}}

	_, ok := est.Estimate("a", "b", books)
	assert.False(t, ok)

	books["b"] = domain.OrderBook{MarketID: "b"}
	p, ok := est.Estimate("a", "b", books)
	require.True(t, ok)
	assert.Equal(t, 0.95, p.Correlation)
	assert.Equal(t, "politics", p.Category)
}

func TestEstimateUnknownPair(t *testing.T) {
	est := NewEstimator(testRegistry(t), nil)
	books := map[string]domain.OrderBook{"b": {}, "d": {}}
	_, ok := est.Estimate("b", "d", books)
	assert.False(t, ok)
}

func TestEstimateSampleSizeBounds(t *testing.T) {
	books := map[string]domain.OrderBook{"a": {}, "b": {}}
	tests := []struct {
		history int
		want    int
	}{
		{0, 10},
		{3, 10},
		{42, 42},
		{100, 100},
		{150, 100},
	}
	for _, tt := range tests {
		est := NewEstimator(testRegistry(t), fixedHistory{"a": tt.history})
		p, ok := est.Estimate("a", "b", books)
		require.True(t, ok)
		assert.Equal(t, tt.want, p.SampleSize, "history=%d", tt.history)
	}
}

func TestEstimateSignificance(t *testing.T) {
	est := NewEstimator(testRegistry(t), nil)
	books := map[string]domain.OrderBook{"a": {}, "b": {}, "c": {}, "d": {}, "e": {}}

	p, _ := est.Estimate("a", "b", books)
	assert.InDelta(t, 0.05, p.Significance, 1e-9)

	p, _ = est.Estimate("c", "a", books)
	assert.InDelta(t, 0.6, p.Significance, 1e-9)

	// Perfect correlation floors at 0.001.
	p, _ = est.Estimate("d", "e", books)
	assert.InDelta(t, 0.001, p.Significance, 1e-12)
}

func TestEstimateAllKeepsRegistryOrder(t *testing.T) {
	est := NewEstimator(testRegistry(t), nil)
	books := map[string]domain.OrderBook{"a": {}, "b": {}, "c": {}, "d": {}}

	pairs := est.EstimateAll(books)
	require.Len(t, pairs, 2)
	assert.Equal(t, "a", pairs[0].MarketA)
	assert.Equal(t, "c", pairs[1].MarketA)
}
