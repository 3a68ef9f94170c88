package executor

import (
	"sync"
	"time"
)

// Dedup remembers opportunity ids that reached the order stage so the same
// bundle is not bought twice within ttl. It is safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
}

// NewDedup creates a Dedup with the given window.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Seen reports whether id was marked within the window.
func (d *Dedup) Seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	ts, ok := d.seen[id]
	return ok && d.now().Sub(ts) < d.ttl
}

// Mark records id at the current time.
func (d *Dedup) Mark(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[id] = d.now()
}

// Cleanup drops expired ids.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for id, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, id)
		}
	}
}
