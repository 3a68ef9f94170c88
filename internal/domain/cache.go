package domain

import (
	"context"
	"time"
)

// CacheStats summarises a bounded cache.
type CacheStats struct {
	Size      int
	MaxSize   int
	Hits      uint64
	Misses    uint64
	Evictions uint64
	HitRatio  float64
}

// Cache is a bounded, TTL-expiring key/value store. Entries older than the
// TTL read as absent; inserting past capacity evicts some existing entry.
type Cache[V any] interface {
	Get(key string) (V, bool)
	Set(key string, value V)
	Clear()
	Stats() CacheStats
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus publishes engine events to other processes.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}
