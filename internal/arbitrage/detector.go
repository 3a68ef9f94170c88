// Package arbitrage finds bundles of correlated markets whose combined
// cheapest asks cost less than the unit payout, scores them and gates them
// through the risk filter.
package arbitrage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	defaultCorrelationThreshold = 0.8
	defaultNotional             = 100.0
	defaultSlippageEstimate     = 0.005
	defaultLiquidityDepth       = 5
)

var one = decimal.NewFromInt(1)

// DetectorConfig tunes bundle identification.
type DetectorConfig struct {
	CorrelationThreshold float64 // minimum correlation to consider a pair
	Notional             float64 // expected profit = edge * Notional
	SlippageEstimate     float64
	LiquidityDepth       int // ask levels summed per side
}

func (c DetectorConfig) withDefaults() DetectorConfig {
	if c.CorrelationThreshold <= 0 {
		c.CorrelationThreshold = defaultCorrelationThreshold
	}
	if c.Notional <= 0 {
		c.Notional = defaultNotional
	}
	if c.SlippageEstimate <= 0 {
		c.SlippageEstimate = defaultSlippageEstimate
	}
	if c.LiquidityDepth <= 0 {
		c.LiquidityDepth = defaultLiquidityDepth
	}
	return c
}

// Decayer supplies the time-decay factor for a bundle.
type Decayer interface {
	Factor(ctx context.Context, markets []string) float64
}

// Detector turns correlation pairs and books into opportunities.
type Detector struct {
	cfg    DetectorConfig
	decay  Decayer
	now    func() time.Time
	logger *slog.Logger
}

// NewDetector creates a Detector.
func NewDetector(cfg DetectorConfig, decay Decayer, logger *slog.Logger) *Detector {
	return &Detector{
		cfg:    cfg.withDefaults(),
		decay:  decay,
		now:    time.Now,
		logger: logger.With(slog.String("component", "arb_detector")),
	}
}

// Identify evaluates each pair in order and returns the opportunities found.
// A pair that fails evaluation is skipped.
func (d *Detector) Identify(ctx context.Context, pairs []domain.CorrelationPair, books map[string]domain.OrderBook) []domain.ArbitrageOpportunity {
	var out []domain.ArbitrageOpportunity
	for _, p := range pairs {
		opp, ok := d.evaluate(ctx, p, books)
		if ok {
			out = append(out, opp)
		}
	}
	return out
}

func (d *Detector) evaluate(ctx context.Context, p domain.CorrelationPair, books map[string]domain.OrderBook) (opp domain.ArbitrageOpportunity, ok bool) {
	defer failClosed(d.logger, "bundle_evaluation", &ok, false)

	if p.Correlation < d.cfg.CorrelationThreshold {
		return opp, false
	}
	bookA, okA := books[p.MarketA]
	bookB, okB := books[p.MarketB]
	if !okA || !okB {
		return opp, false
	}
	askA, okA := bookA.BestAsk()
	askB, okB := bookB.BestAsk()
	if !okA || !okB {
		return opp, false
	}

	total := askA.Price.Add(askB.Price)
	if !total.LessThan(one) {
		return opp, false
	}
	edge := one.Sub(total).Div(total).InexactFloat64()
	if !(edge > 0) {
		return opp, false
	}

	markets := []string{p.MarketA, p.MarketB}
	now := d.now()
	opp = domain.ArbitrageOpportunity{
		ID:      opportunityID(now, p.MarketA, p.MarketB),
		Markets: markets,
		AskPrices: map[string]decimal.Decimal{
			p.MarketA: askA.Price,
			p.MarketB: askB.Price,
		},
		Edge:             edge,
		TotalCost:        total.InexactFloat64(),
		ExpectedProfit:   edge * d.cfg.Notional,
		Liquidity:        d.depth(bookA) + d.depth(bookB),
		DetectedAt:       now,
		SlippageEstimate: d.cfg.SlippageEstimate,
		TimeDecayFactor:  d.decay.Factor(ctx, markets),
		Correlations:     map[string]domain.CorrelationPair{p.Key(): p},
		RiskLevel:        AssessRisk(d.logger, p.Correlation, edge),
	}

	d.logger.Debug("bundle priced below payout",
		slog.String("id", opp.ID),
		slog.Float64("total_cost", opp.TotalCost),
		slog.Float64("edge", opp.Edge),
		slog.String("risk", string(opp.RiskLevel)),
	)
	return opp, true
}

// depth sums the sizes of the cheapest LiquidityDepth asks.
func (d *Detector) depth(b domain.OrderBook) float64 {
	sum := decimal.Zero
	for _, e := range b.CheapestAsks(d.cfg.LiquidityDepth) {
		sum = sum.Add(e.Size)
	}
	return sum.InexactFloat64()
}

func opportunityID(at time.Time, a, b string) string {
	return fmt.Sprintf("bundle_%d_%s_%s", at.Unix(), truncate(a, 8), truncate(b, 8))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
