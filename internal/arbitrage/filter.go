package arbitrage

import (
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// FilterConfig holds the risk limits. MaxPositionSize is in the same units as
// TotalCost * Notional.
type FilterConfig struct {
	MaxPositionSize float64
	MinLiquidity    float64
	MaxVolatility   float64
	MaxSlippage     float64
	MinTimeDecay    float64
	Notional        float64
}

// DefaultFilterConfig returns the production limits.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		MaxPositionSize: 200, // 2% of a 10,000 portfolio
		MinLiquidity:    25000,
		MaxVolatility:   0.5,
		MaxSlippage:     0.005,
		MinTimeDecay:    0.5,
		Notional:        defaultNotional,
	}
}

// VolatilitySource returns the cached volatility estimate for a market.
type VolatilitySource interface {
	Volatility(marketID string) (float64, bool)
}

type check struct {
	name string
	fn   func(domain.ArbitrageOpportunity) error
}

// RiskFilter decides whether an opportunity may be acted on. Every check
// must pass; a check that panics counts as failed.
type RiskFilter struct {
	cfg    FilterConfig
	vol    VolatilitySource
	checks []check
	logger *slog.Logger
}

// NewRiskFilter creates a RiskFilter. vol may be nil, in which case the
// volatility check always passes.
func NewRiskFilter(cfg FilterConfig, vol VolatilitySource, logger *slog.Logger) *RiskFilter {
	if cfg.Notional <= 0 {
		cfg.Notional = defaultNotional
	}
	f := &RiskFilter{
		cfg:    cfg,
		vol:    vol,
		logger: logger.With(slog.String("component", "risk_filter")),
	}
	f.checks = []check{
		{"well_formed", f.checkWellFormed},
		{"position_size", f.checkPositionSize},
		{"liquidity", f.checkLiquidity},
		{"volatility", f.checkVolatility},
		{"slippage", f.checkSlippage},
		{"time_decay", f.checkTimeDecay},
	}
	return f
}

// Passes reports whether opp clears every check.
func (f *RiskFilter) Passes(opp domain.ArbitrageOpportunity) bool {
	return f.Evaluate(opp) == nil
}

// Evaluate runs the checks in order and returns the first rejection, wrapped
// around domain.ErrRiskRejected.
func (f *RiskFilter) Evaluate(opp domain.ArbitrageOpportunity) error {
	for _, c := range f.checks {
		if err := f.run(c, opp); err != nil {
			f.logger.Debug("opportunity rejected",
				slog.String("id", opp.ID),
				slog.String("check", c.name),
				slog.String("reason", err.Error()),
			)
			return err
		}
	}
	return nil
}

func (f *RiskFilter) run(c check, opp domain.ArbitrageOpportunity) (err error) {
	defer failClosed(f.logger, c.name, &err, fmt.Errorf("%w: %s check failed", domain.ErrRiskRejected, c.name))
	return c.fn(opp)
}

func reject(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrRiskRejected, fmt.Sprintf(format, args...))
}

func (f *RiskFilter) checkWellFormed(opp domain.ArbitrageOpportunity) error {
	switch {
	case len(opp.Markets) < 2:
		return reject("bundle needs at least two markets")
	case !finite(opp.Edge) || opp.Edge <= 0:
		return reject("edge %v not positive", opp.Edge)
	case !finite(opp.TotalCost) || opp.TotalCost <= 0 || opp.TotalCost >= 1:
		return reject("total cost %v outside (0, 1)", opp.TotalCost)
	case !finite(opp.Liquidity) || opp.Liquidity < 0:
		return reject("liquidity %v invalid", opp.Liquidity)
	case !finite(opp.SlippageEstimate) || opp.SlippageEstimate < 0:
		return reject("slippage %v invalid", opp.SlippageEstimate)
	case !finite(opp.TimeDecayFactor) || opp.TimeDecayFactor < minDecay || opp.TimeDecayFactor > maxDecay:
		return reject("time decay %v outside [0.5, 1]", opp.TimeDecayFactor)
	case !opp.RiskLevel.Valid():
		return reject("unknown risk level %q", opp.RiskLevel)
	}
	for _, id := range opp.Markets {
		if p, ok := opp.AskPrices[id]; !ok || !p.IsPositive() {
			return reject("no ask price for %s", id)
		}
	}
	return nil
}

func (f *RiskFilter) checkPositionSize(opp domain.ArbitrageOpportunity) error {
	if size := opp.TotalCost * f.cfg.Notional; size > f.cfg.MaxPositionSize {
		return reject("position %.2f above max %.2f", size, f.cfg.MaxPositionSize)
	}
	return nil
}

func (f *RiskFilter) checkLiquidity(opp domain.ArbitrageOpportunity) error {
	if opp.Liquidity < f.cfg.MinLiquidity {
		return reject("liquidity %.0f below min %.0f", opp.Liquidity, f.cfg.MinLiquidity)
	}
	return nil
}

func (f *RiskFilter) checkVolatility(opp domain.ArbitrageOpportunity) error {
	if f.vol == nil {
		return nil
	}
	for _, id := range opp.Markets {
		v, ok := f.vol.Volatility(id)
		if !ok {
			continue
		}
		if !finite(v) || v > f.cfg.MaxVolatility {
			return reject("market %s volatility %.3f above max %.3f", id, v, f.cfg.MaxVolatility)
		}
	}
	return nil
}

func (f *RiskFilter) checkSlippage(opp domain.ArbitrageOpportunity) error {
	if opp.SlippageEstimate > f.cfg.MaxSlippage {
		return reject("slippage %.4f above max %.4f", opp.SlippageEstimate, f.cfg.MaxSlippage)
	}
	return nil
}

func (f *RiskFilter) checkTimeDecay(opp domain.ArbitrageOpportunity) error {
	if opp.TimeDecayFactor < f.cfg.MinTimeDecay {
		return reject("time decay %.3f below min %.3f", opp.TimeDecayFactor, f.cfg.MinTimeDecay)
	}
	return nil
}
