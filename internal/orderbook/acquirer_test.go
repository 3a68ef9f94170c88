package orderbook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/polyarb/internal/cache/memory"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu       sync.Mutex
	fail     map[string]bool
	panicOn  map[string]bool
	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
	calls    map[string]int
}

func (f *fakeFetcher) GetOrderBook(_ context.Context, id string) (domain.OrderBook, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[id]++
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.panicOn[id] {
		panic("boom")
	}
	if f.fail[id] {
		return domain.OrderBook{}, errors.New("upstream 500")
	}
	return domain.OrderBook{
		Asks: []domain.OrderBookEntry{{Price: decimal.RequireFromString("0.5"), Size: decimal.NewFromInt(100)}},
	}, nil
}

func newTestAcquirer(f Fetcher, universe []string) *Acquirer {
	return newTestAcquirerTTL(f, universe, time.Minute)
}

func newTestAcquirerTTL(f Fetcher, universe []string, ttl time.Duration) *Acquirer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache := memory.New[domain.OrderBook](memory.Config{MaxSize: 1000, TTL: ttl})
	return NewAcquirer(f, cache, func() []string { return universe }, 10, logger)
}

func TestFetchIsolatesFailures(t *testing.T) {
	f := &fakeFetcher{
		fail:    map[string]bool{"b": true},
		panicOn: map[string]bool{"c": true},
	}
	a := newTestAcquirer(f, []string{"a", "b", "c", "d"})

	books := a.Fetch(context.Background(), nil)
	require.Len(t, books, 2)
	assert.Contains(t, books, "a")
	assert.Contains(t, books, "d")
	assert.Equal(t, "a", books["a"].MarketID)

	_, ok := a.Cached("a")
	assert.True(t, ok)
	_, ok = a.Cached("b")
	assert.False(t, ok)
}

func TestFetchBatchesConcurrency(t *testing.T) {
	f := &fakeFetcher{delay: 10 * time.Millisecond}
	ids := make([]string, 35)
	for i := range ids {
		ids[i] = fmt.Sprintf("m%d", i)
	}
	a := newTestAcquirer(f, nil)

	books := a.Fetch(context.Background(), ids)
	assert.Len(t, books, 35)
	assert.LessOrEqual(t, f.peak.Load(), int32(10))
}

func TestFetchDedupesIDs(t *testing.T) {
	f := &fakeFetcher{}
	a := newTestAcquirer(f, nil)

	books := a.Fetch(context.Background(), []string{"a", "a", "", "b"})
	assert.Len(t, books, 2)
	assert.Equal(t, 1, f.calls["a"])
}

func TestClearCache(t *testing.T) {
	a := newTestAcquirer(&fakeFetcher{}, []string{"a"})
	a.Fetch(context.Background(), nil)
	require.Equal(t, 1, a.CacheStats().Size)

	a.ClearCache()
	assert.Equal(t, 0, a.CacheStats().Size)
}

func TestFetchServesFreshBooksFromCache(t *testing.T) {
	f := &fakeFetcher{fail: map[string]bool{"b": true}}
	a := newTestAcquirer(f, []string{"a", "b"})

	first := a.Fetch(context.Background(), nil)
	second := a.Fetch(context.Background(), nil)

	assert.Equal(t, first["a"], second["a"])
	assert.Equal(t, 1, f.calls["a"], "cached book is not fetched again")
	assert.Equal(t, 2, f.calls["b"], "failed market is retried")
	assert.Equal(t, uint64(1), a.CacheStats().Hits)
}

func TestFetchRefetchesExpiredBooks(t *testing.T) {
	f := &fakeFetcher{}
	a := newTestAcquirerTTL(f, []string{"a"}, 20*time.Millisecond)

	a.Fetch(context.Background(), nil)
	require.Eventually(t, func() bool {
		_, ok := a.cache.Get("a")
		return !ok
	}, time.Second, 5*time.Millisecond)

	books := a.Fetch(context.Background(), nil)
	assert.Contains(t, books, "a")
	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, 2, f.calls["a"])
}
