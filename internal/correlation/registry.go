// Package correlation holds the curated table of market relationships and
// turns it into scored pairs for each scan.
package correlation

import (
	"fmt"
	"math"
)

// Entry is one curated relationship between two markets.
type Entry struct {
	MarketA     string
	MarketB     string
	Correlation float64
	Category    string
	Description string
}

// Registry is an immutable, ordered set of curated entries. Lookups succeed
// for either ordering of the two market ids.
type Registry struct {
	entries []Entry
	index   map[string]int
}

// curated is the built-in table used when no relationships are configured.
// The ids are readable placeholders; deployments list real CLOB token ids
// under [[correlations]] in the config file.
var curated = []Entry{
	{
		MarketA:     "trump-wins-2028-presidency",
		MarketB:     "republican-wins-2028-presidency",
		Correlation: 0.95,
		Category:    "politics",
		Description: "candidate win implies party win",
	},
	{
		MarketA:     "fed-cut-dec-2026",
		MarketB:     "fed-funds-below-3pct-2027",
		Correlation: 0.85,
		Category:    "macro",
		Description: "December cut moves the 2027 funds rate below 3%",
	},
	{
		MarketA:     "btc-above-150k-2026",
		MarketB:     "eth-above-6k-2026",
		Correlation: 0.82,
		Category:    "crypto",
		Description: "majors rally together",
	},
	{
		MarketA:     "chiefs-win-super-bowl-lxi",
		MarketB:     "chiefs-win-afc-2026",
		Correlation: 0.90,
		Category:    "sports",
		Description: "super bowl win requires conference win",
	},
}

// DefaultRegistry returns the built-in registry.
func DefaultRegistry() *Registry {
	r, _ := NewRegistry(curated)
	return r
}

// NewRegistry validates entries and builds a Registry. Duplicate pairs are
// rejected regardless of ordering.
func NewRegistry(entries []Entry) (*Registry, error) {
	r := &Registry{
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[string]int, len(entries)*2),
	}
	for i, e := range entries {
		switch {
		case e.MarketA == "" || e.MarketB == "":
			return nil, fmt.Errorf("correlation: entry %d: market ids are required", i)
		case e.MarketA == e.MarketB:
			return nil, fmt.Errorf("correlation: entry %d: market %q paired with itself", i, e.MarketA)
		case math.IsNaN(e.Correlation) || e.Correlation < -1 || e.Correlation > 1:
			return nil, fmt.Errorf("correlation: entry %d: correlation %v outside [-1, 1]", i, e.Correlation)
		}
		if _, dup := r.index[directedKey(e.MarketA, e.MarketB)]; dup {
			return nil, fmt.Errorf("correlation: entry %d: duplicate pair %s/%s", i, e.MarketA, e.MarketB)
		}
		r.index[directedKey(e.MarketA, e.MarketB)] = len(r.entries)
		r.index[directedKey(e.MarketB, e.MarketA)] = len(r.entries)
		r.entries = append(r.entries, e)
	}
	return r, nil
}

func directedKey(a, b string) string {
	return a + "\x00" + b
}

// Lookup returns the entry relating a and b in either order.
func (r *Registry) Lookup(a, b string) (Entry, bool) {
	i, ok := r.index[directedKey(a, b)]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

// Entries returns the entries in registry order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Markets returns every market id mentioned, first appearance first.
func (r *Registry) Markets() []string {
	seen := make(map[string]struct{}, len(r.entries)*2)
	out := make([]string, 0, len(r.entries)*2)
	for _, e := range r.entries {
		for _, id := range [2]string{e.MarketA, e.MarketB} {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	return len(r.entries)
}
