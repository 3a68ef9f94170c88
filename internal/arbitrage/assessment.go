package arbitrage

import (
	"log/slog"
	"math"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// AssessRisk buckets a bundle by correlation strength and edge size:
//
//	low    |corr| >= 0.9 and edge < 0.05
//	medium |corr| >= 0.8
//	high   otherwise
//
// Any failure yields high.
func AssessRisk(logger *slog.Logger, correlation, edge float64) (level domain.RiskLevel) {
	defer failClosed(logger, "risk_assessment", &level, domain.RiskHigh)

	if !finite(correlation) || !finite(edge) {
		return domain.RiskHigh
	}
	c := math.Abs(correlation)
	switch {
	case c >= 0.9 && edge < 0.05:
		return domain.RiskLow
	case c >= 0.8:
		return domain.RiskMedium
	default:
		return domain.RiskHigh
	}
}
