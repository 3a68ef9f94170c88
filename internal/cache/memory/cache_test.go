package memory

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheBoundedSize(t *testing.T) {
	c := New[int](Config{MaxSize: 10, TTL: time.Minute})
	for i := 0; i < 25; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
	}
	assert.Equal(t, 10, c.Len())

	// Most recent inserts survive.
	v, ok := c.Get("k24")
	require.True(t, ok)
	assert.Equal(t, 24, v)
	_, ok = c.Get("k0")
	assert.False(t, ok)

	st := c.Stats()
	assert.Equal(t, 10, st.MaxSize)
	assert.GreaterOrEqual(t, st.Evictions, uint64(15))
}

func TestCacheExpiry(t *testing.T) {
	c := New[string](Config{MaxSize: 10, TTL: 30 * time.Millisecond})
	c.Set("a", "x")

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "x", v)

	time.Sleep(80 * time.Millisecond)
	_, ok = c.Get("a")
	assert.False(t, ok, "entry older than TTL must read as absent")
}

func TestCacheStatsHitRatio(t *testing.T) {
	c := New[int](Config{MaxSize: 4})
	c.Set("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("a")
	c.Get("missing")

	st := c.Stats()
	assert.Equal(t, uint64(3), st.Hits)
	assert.Equal(t, uint64(1), st.Misses)
	assert.InDelta(t, 0.75, st.HitRatio, 1e-9)
	assert.Equal(t, 1, st.Size)
}

func TestCacheClear(t *testing.T) {
	c := New[int](Config{})
	c.Set("a", 1)
	c.Set("b", 2)
	c.Clear()
	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, defaultMaxSize, c.Stats().MaxSize)
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := New[int](Config{MaxSize: 50, TTL: time.Minute})
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("w%d-%d", w, i%60)
				c.Set(key, i)
				c.Get(key)
			}
		}(w)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 50)
}
