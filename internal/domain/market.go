package domain

import "time"

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusActive  MarketStatus = "active"
	MarketStatusClosed  MarketStatus = "closed"
	MarketStatusSettled MarketStatus = "settled"
)

// Market is the subset of Polymarket market metadata the engine consumes.
// EndDate is nil when the venue does not publish a resolution date.
type Market struct {
	ID       string
	Question string
	Slug     string
	TokenIDs [2]string
	Status   MarketStatus
	EndDate  *time.Time
}
