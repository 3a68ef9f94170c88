package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskLevel is the coarse risk bucket attached to an opportunity.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Valid reports whether r is one of the three known levels.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// ArbitrageOpportunity is a bundle of correlated binary markets whose
// combined cheapest ask is below the unit payout. Values are immutable once
// constructed; execution re-validates instead of mutating.
type ArbitrageOpportunity struct {
	ID               string
	Markets          []string
	AskPrices        map[string]decimal.Decimal // limit price per leg
	Edge             float64
	TotalCost        float64
	ExpectedProfit   float64 // edge * fixed notional, ranking only
	Liquidity        float64
	DetectedAt       time.Time
	SlippageEstimate float64
	TimeDecayFactor  float64
	Correlations     map[string]CorrelationPair
	RiskLevel        RiskLevel
}

// PairKey returns the order-independent key of the first two legs.
func (o ArbitrageOpportunity) PairKey() string {
	if len(o.Markets) < 2 {
		if len(o.Markets) == 1 {
			return o.Markets[0]
		}
		return ""
	}
	return PairKey(o.Markets[0], o.Markets[1])
}
