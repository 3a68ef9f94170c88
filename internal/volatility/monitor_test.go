package volatility

import (
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/alanyoungcy/polyarb/internal/cache/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(cfg Config) *Monitor {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewMonitor(cfg, memory.New[float64](memory.Config{MaxSize: 100, TTL: time.Hour}), logger)
}

func TestHistoryBoundedToNewest(t *testing.T) {
	m := newTestMonitor(Config{})
	for i := 0; i < 150; i++ {
		m.Record("a", 0.5+float64(i)*0.0001)
	}
	hist := m.History("a")
	require.Len(t, hist, 100)
	assert.Equal(t, 100, m.HistoryLen("a"))
	assert.InDelta(t, 0.5+149*0.0001, hist[99].Price, 1e-12)
	assert.InDelta(t, 0.5+50*0.0001, hist[0].Price, 1e-12)
}

func TestNoEstimateBeforeWindow(t *testing.T) {
	m := newTestMonitor(Config{})
	for i := 0; i < 9; i++ {
		_, ok := m.Record("a", 0.5)
		assert.False(t, ok)
	}
	_, ok := m.Volatility("a")
	assert.False(t, ok)
}

func TestIdenticalPricesZeroVolatility(t *testing.T) {
	m := newTestMonitor(Config{})
	for i := 0; i < 10; i++ {
		m.Record("a", 0.42)
	}
	v, ok := m.Volatility("a")
	require.True(t, ok)
	assert.InDelta(t, 0, v, 1e-12)
	assert.False(t, m.HighVolatility())
}

func TestLargeSwingSetsFlag(t *testing.T) {
	m := newTestMonitor(Config{})
	for i := 0; i < 5; i++ {
		m.Record("a", 0.2)
	}
	for i := 0; i < 5; i++ {
		m.Record("a", 0.8)
	}
	v, ok := m.Volatility("a")
	require.True(t, ok)
	// mean 0.5, stddev 0.3
	assert.InDelta(t, 0.6, v, 1e-9)
	assert.True(t, m.HighVolatility())
	assert.False(t, m.TriggeredAt().IsZero())
}

func TestFlagIsStickyWithoutReset(t *testing.T) {
	m := newTestMonitor(Config{})
	for i := 0; i < 10; i++ {
		m.Record("a", []float64{0.1, 0.9}[i%2])
	}
	require.True(t, m.HighVolatility())

	for i := 0; i < 20; i++ {
		m.Record("a", 0.5)
	}
	assert.True(t, m.HighVolatility(), "calm prices do not clear the flag")

	m.Reset()
	assert.False(t, m.HighVolatility())
}

func TestFlagExpiresAfterResetWindow(t *testing.T) {
	m := newTestMonitor(Config{ResetAfter: time.Minute})
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		m.Record("a", []float64{0.1, 0.9}[i%2])
	}
	require.True(t, m.HighVolatility())

	now = now.Add(59 * time.Second)
	assert.True(t, m.HighVolatility())

	now = now.Add(time.Second)
	assert.False(t, m.HighVolatility())
}

func TestZeroMeanAndNonFiniteSkipped(t *testing.T) {
	m := newTestMonitor(Config{})
	for i := 0; i < 10; i++ {
		m.Record("zero", 0)
	}
	_, ok := m.Volatility("zero")
	assert.False(t, ok)

	_, ok = m.Record("a", math.NaN())
	assert.False(t, ok)
	assert.Equal(t, 0, m.HistoryLen("a"))
}

func TestClearCacheKeepsHistory(t *testing.T) {
	m := newTestMonitor(Config{})
	for i := 0; i < 10; i++ {
		m.Record("a", 0.5)
	}
	m.ClearCache()
	_, ok := m.Volatility("a")
	assert.False(t, ok)
	assert.Equal(t, 10, m.HistoryLen("a"))
}
