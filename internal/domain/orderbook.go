package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// BookSide names one side of an order book.
type BookSide string

const (
	BookSideAsks BookSide = "asks"
	BookSideBids BookSide = "bids"
)

// OrderBookEntry is a single price level. Prices of binary-outcome contracts
// live in (0, 1); sizes are non-negative share counts.
type OrderBookEntry struct {
	Price     decimal.Decimal
	Size      decimal.Decimal
	Timestamp time.Time
}

// OrderBook is a snapshot of resting liquidity for one market (CLOB token).
type OrderBook struct {
	MarketID  string
	Asks      []OrderBookEntry
	Bids      []OrderBookEntry
	Timestamp time.Time
}

// Side returns the entries for the given side.
func (b OrderBook) Side(side BookSide) []OrderBookEntry {
	if side == BookSideBids {
		return b.Bids
	}
	return b.Asks
}

// HasAsks reports whether at least one ask with a positive price exists.
func (b OrderBook) HasAsks() bool {
	_, ok := b.BestAsk()
	return ok
}

// BestAsk returns the minimum-price ask. Entries with a non-positive price
// are ignored.
func (b OrderBook) BestAsk() (OrderBookEntry, bool) {
	var best OrderBookEntry
	found := false
	for _, e := range b.Asks {
		if !e.Price.IsPositive() {
			continue
		}
		if !found || e.Price.LessThan(best.Price) {
			best = e
			found = true
		}
	}
	return best, found
}

// CheapestAsks returns up to n asks ordered by ascending price. The returned
// slice is a copy and safe to mutate.
func (b OrderBook) CheapestAsks(n int) []OrderBookEntry {
	asks := make([]OrderBookEntry, 0, len(b.Asks))
	for _, e := range b.Asks {
		if e.Price.IsPositive() {
			asks = append(asks, e)
		}
	}
	sort.SliceStable(asks, func(i, j int) bool {
		return asks[i].Price.LessThan(asks[j].Price)
	})
	if n >= 0 && len(asks) > n {
		asks = asks[:n]
	}
	return asks
}
