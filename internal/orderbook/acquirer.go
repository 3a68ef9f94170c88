// Package orderbook fetches books for the registry universe in bounded
// concurrent batches and caches them briefly.
package orderbook

import (
	"context"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"golang.org/x/sync/errgroup"
)

const defaultBatchSize = 10

// Fetcher retrieves a single order book.
type Fetcher interface {
	GetOrderBook(ctx context.Context, marketID string) (domain.OrderBook, error)
}

// Acquirer fetches books with at most BatchSize requests in flight. A failed
// market is logged and omitted; it never aborts the batch.
type Acquirer struct {
	fetcher   Fetcher
	cache     domain.Cache[domain.OrderBook]
	universe  func() []string
	batchSize int
	logger    *slog.Logger
}

// NewAcquirer creates an Acquirer. universe supplies the default market set
// when Fetch is called without ids.
func NewAcquirer(fetcher Fetcher, cache domain.Cache[domain.OrderBook], universe func() []string, batchSize int, logger *slog.Logger) *Acquirer {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Acquirer{
		fetcher:   fetcher,
		cache:     cache,
		universe:  universe,
		batchSize: batchSize,
		logger:    logger.With(slog.String("component", "orderbook")),
	}
}

// Fetch returns a book for every requested market that is cached or could
// be fetched. A nil or empty ids slice means the whole universe. Only cache
// misses reach the fetcher; successful fetches are written to the cache.
func (a *Acquirer) Fetch(ctx context.Context, ids []string) map[string]domain.OrderBook {
	if len(ids) == 0 && a.universe != nil {
		ids = a.universe()
	}
	ids = dedupe(ids)

	out := make(map[string]domain.OrderBook, len(ids))
	misses := make([]string, 0, len(ids))
	for _, id := range ids {
		if book, ok := a.cache.Get(id); ok {
			out[id] = book
			continue
		}
		misses = append(misses, id)
	}

	var mu sync.Mutex
	for start := 0; start < len(misses); start += a.batchSize {
		batch := misses[start:min(start+a.batchSize, len(misses))]

		var g errgroup.Group
		for _, id := range batch {
			g.Go(func() error {
				book, ok := a.fetchOne(ctx, id)
				if !ok {
					return nil
				}
				a.cache.Set(id, book)
				mu.Lock()
				out[id] = book
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}

	a.logger.Debug("order books fetched",
		slog.Int("requested", len(ids)),
		slog.Int("cached", len(ids)-len(misses)),
		slog.Int("available", len(out)),
	)
	return out
}

func (a *Acquirer) fetchOne(ctx context.Context, id string) (book domain.OrderBook, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("order book fetch panicked",
				slog.String("market", id),
				slog.Any("panic", r),
			)
			ok = false
		}
	}()

	book, err := a.fetcher.GetOrderBook(ctx, id)
	if err != nil {
		a.logger.Warn("order book fetch failed",
			slog.String("market", id),
			slog.String("error", err.Error()),
		)
		return domain.OrderBook{}, false
	}
	if book.MarketID == "" {
		book.MarketID = id
	}
	return book, true
}

// Cached returns the cached book for id, if still fresh.
func (a *Acquirer) Cached(id string) (domain.OrderBook, bool) {
	return a.cache.Get(id)
}

// ClearCache drops all cached books.
func (a *Acquirer) ClearCache() {
	a.cache.Clear()
}

// CacheStats exposes the book cache counters.
func (a *Acquirer) CacheStats() domain.CacheStats {
	return a.cache.Stats()
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
