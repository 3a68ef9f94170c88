package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/shopspring/decimal"
)

// flexBool accepts a JSON bool or a "true"/"false" string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// APILevel is one price level of a CLOB book.
type APILevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// APIBook is the response of GET /book.
type APIBook struct {
	Market    string     `json:"market"`
	AssetID   string     `json:"asset_id"`
	Timestamp string     `json:"timestamp"` // unix millis
	Hash      string     `json:"hash"`
	Bids      []APILevel `json:"bids"`
	Asks      []APILevel `json:"asks"`
}

// APIOrderResult is the response of POST /order.
type APIOrderResult struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg,omitempty"`
	OrderID  string `json:"orderID,omitempty"`
	Status   string `json:"status,omitempty"`
}

// APIMarket is the subset of a Gamma market the engine reads.
type APIMarket struct {
	ID           string   `json:"id"`
	Question     string   `json:"question"`
	Slug         string   `json:"slug"`
	Active       flexBool `json:"active"`
	Closed       flexBool `json:"closed"`
	EndDate      string   `json:"endDate"`
	EndDateISO   string   `json:"endDateIso"`
	ClobTokenIDs string   `json:"clobTokenIds"` // JSON-encoded array
}

// ToDomainOrderBook parses levels with decimal precision. Unparseable levels
// are dropped.
func (b *APIBook) ToDomainOrderBook(fallbackID string) domain.OrderBook {
	ts := parseMillis(b.Timestamp)
	book := domain.OrderBook{
		MarketID:  b.AssetID,
		Timestamp: ts,
		Bids:      toEntries(b.Bids, ts),
		Asks:      toEntries(b.Asks, ts),
	}
	if book.MarketID == "" {
		book.MarketID = fallbackID
	}
	return book
}

func toEntries(levels []APILevel, ts time.Time) []domain.OrderBookEntry {
	out := make([]domain.OrderBookEntry, 0, len(levels))
	for _, l := range levels {
		p, err := decimal.NewFromString(l.Price)
		if err != nil {
			continue
		}
		s, err := decimal.NewFromString(l.Size)
		if err != nil || s.IsNegative() {
			continue
		}
		out = append(out, domain.OrderBookEntry{Price: p, Size: s, Timestamp: ts})
	}
	return out
}

func parseMillis(s string) time.Time {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Now().UTC()
}

// ToDomainMarket converts a Gamma market.
func (m *APIMarket) ToDomainMarket() domain.Market {
	dm := domain.Market{
		ID:       m.ID,
		Question: m.Question,
		Slug:     m.Slug,
	}
	switch {
	case bool(m.Closed):
		dm.Status = domain.MarketStatusClosed
	case bool(m.Active):
		dm.Status = domain.MarketStatusActive
	default:
		dm.Status = domain.MarketStatusSettled
	}

	var ids []string
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &ids); err == nil {
		copy(dm.TokenIDs[:], ids)
	}
	if t, ok := m.endDate(); ok {
		dm.EndDate = &t
	}
	return dm
}

func (m *APIMarket) endDate() (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, m.EndDate); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.DateOnly, m.EndDateISO); err == nil {
		return t, true
	}
	return time.Time{}, false
}
