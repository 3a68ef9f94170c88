package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

const loopCheckID = "monitor"

// Run drives the monitoring loop until Shutdown is called or ctx is
// cancelled. Cancellation is observed only while sleeping; a scan or
// execution in progress always completes.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("monitoring loop started",
		slog.Duration("poll_interval", e.cfg.PollInterval),
		slog.Bool("auto_execute", e.cfg.AutoExecute),
		slog.Int("pairs", e.registry.Len()),
	)
	defer e.logger.Info("monitoring loop stopped")

	work := context.WithoutCancel(ctx)
	wasVolatile := false

	for e.enabled.Load() {
		if halt := e.deps.Breaker.CheckTradeAllowed(work, loopCheckID); halt != nil {
			e.logger.Warn("trading halted, backing off",
				slog.String("reason", halt.Reason),
				slog.Duration("backoff", e.cfg.HaltBackoff),
			)
			if !sleep(ctx, e.cfg.HaltBackoff) {
				return ctx.Err()
			}
			continue
		}

		if e.volatility.HighVolatility() {
			if !wasVolatile {
				e.notify(work, EventHighVolatility, "High volatility",
					fmt.Sprintf("Scanning paused for %s", e.cfg.VolatilityBackoff))
			}
			wasVolatile = true
			e.logger.Warn("high volatility, backing off", slog.Duration("backoff", e.cfg.VolatilityBackoff))
			if !sleep(ctx, e.cfg.VolatilityBackoff) {
				return ctx.Err()
			}
			continue
		}
		wasVolatile = false

		if !e.step(work) {
			break
		}
		if !sleep(ctx, e.cfg.PollInterval) {
			return ctx.Err()
		}
	}
	return nil
}

// step runs one scan, emits the results and, in auto-execute mode, trades
// the most profitable opportunity. It reports false once Shutdown was called.
func (e *Engine) step(ctx context.Context) bool {
	e.stepMu.Lock()
	defer e.stepMu.Unlock()
	if !e.enabled.Load() {
		return false
	}

	opps := e.ScanForOpportunities(ctx)
	e.emit(ctx, opps)
	if e.cfg.AutoExecute && len(opps) > 0 {
		res := e.ExecuteDetailed(ctx, best(opps))
		e.logger.Info("auto execution finished",
			slog.String("opportunity_id", res.OpportunityID),
			slog.String("status", string(res.Status)),
		)
	}
	return true
}

// emit logs, journals and alerts each opportunity. Alerts for a bundle
// already reported at the same cost within the dedup window are suppressed.
func (e *Engine) emit(ctx context.Context, opps []domain.ArbitrageOpportunity) {
	for _, o := range opps {
		e.logger.Info("arbitrage opportunity",
			slog.String("id", o.ID),
			slog.String("markets", strings.Join(o.Markets, ",")),
			slog.Float64("edge", o.Edge),
			slog.Float64("total_cost", o.TotalCost),
			slog.Float64("expected_profit", o.ExpectedProfit),
			slog.Float64("liquidity", o.Liquidity),
			slog.String("risk", string(o.RiskLevel)),
		)

		if prev, ok := e.opps.Get(o.PairKey()); ok && prev.TotalCost == o.TotalCost {
			continue
		}
		e.opps.Set(o.PairKey(), o)

		for _, j := range e.deps.Journals {
			if err := j.RecordOpportunity(ctx, o); err != nil {
				e.logger.Warn("journal opportunity failed", slog.String("error", err.Error()))
			}
		}
		e.notify(ctx, EventDetected, "Arbitrage opportunity", formatOpportunity(o))
	}
}

func (e *Engine) notify(ctx context.Context, event, title, msg string) {
	if e.deps.Notifier == nil {
		return
	}
	if err := e.deps.Notifier.Notify(ctx, event, title, msg); err != nil {
		e.logger.Warn("notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func formatOpportunity(o domain.ArbitrageOpportunity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Markets: %s\n", strings.Join(o.Markets, " + "))
	for _, id := range o.Markets {
		fmt.Fprintf(&b, "  %s ask %s\n", id, o.AskPrices[id])
	}
	fmt.Fprintf(&b, "Total cost: %.4f\n", o.TotalCost)
	fmt.Fprintf(&b, "Edge: %.2f%%\n", o.Edge*100)
	fmt.Fprintf(&b, "Expected profit: $%.2f per $100\n", o.ExpectedProfit)
	fmt.Fprintf(&b, "Liquidity: %.0f  Decay: %.3f  Risk: %s", o.Liquidity, o.TimeDecayFactor, o.RiskLevel)
	return b.String()
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
