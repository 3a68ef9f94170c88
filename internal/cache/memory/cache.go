// Package memory implements the bounded, TTL-expiring in-process cache used
// for order books, volatility estimates, end dates and opportunities.
package memory

import (
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultMaxSize = 1000
	defaultTTL     = time.Minute
)

// Config sizes a Cache. Zero values fall back to 1000 entries and one minute.
type Config struct {
	MaxSize int
	TTL     time.Duration
}

// Cache is a thread-safe LRU with per-entry expiry. Inserting past MaxSize
// evicts the least recently used entry; expired entries read as misses.
type Cache[V any] struct {
	lru     *expirable.LRU[string, V]
	maxSize int

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New creates a Cache.
func New[V any](cfg Config) *Cache[V] {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = defaultMaxSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	c := &Cache[V]{maxSize: cfg.MaxSize}
	c.lru = expirable.NewLRU[string, V](cfg.MaxSize, func(string, V) {
		c.evictions.Add(1)
	}, cfg.TTL)
	return c
}

// Get returns the live value for key.
func (c *Cache[V]) Get(key string) (V, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Set stores value under key, refreshing its expiry.
func (c *Cache[V]) Set(key string, value V) {
	c.lru.Add(key, value)
}

// Len returns the number of entries, including ones not yet swept.
func (c *Cache[V]) Len() int {
	return c.lru.Len()
}

// Clear drops every entry. Counters are kept.
func (c *Cache[V]) Clear() {
	c.lru.Purge()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[V]) Stats() domain.CacheStats {
	hits, misses := c.hits.Load(), c.misses.Load()
	var ratio float64
	if total := hits + misses; total > 0 {
		ratio = float64(hits) / float64(total)
	}
	return domain.CacheStats{
		Size:      c.lru.Len(),
		MaxSize:   c.maxSize,
		Hits:      hits,
		Misses:    misses,
		Evictions: c.evictions.Load(),
		HitRatio:  ratio,
	}
}

var _ domain.Cache[int] = (*Cache[int])(nil)
