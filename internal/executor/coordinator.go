// Package executor runs the execution state machine for a single
// opportunity: re-validate, consult the circuit breaker, place one order per
// leg and settle.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Notification event names.
const (
	EventExecuted = "arb_executed"
	EventPartial  = "arb_partial"
	EventFailed   = "arb_failed"
)

const executionLockKey = "execute"

// OrderPlacer submits a single limit order.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, marketID string, side domain.OrderSide, size, price decimal.Decimal) (string, error)
}

// Validator re-checks an opportunity right before trading.
type Validator interface {
	Evaluate(opp domain.ArbitrageOpportunity) error
}

// Recorder receives every settled result. The engine statistics implement it.
type Recorder interface {
	RecordExecution(res domain.ExecutionResult)
}

// Config tunes the coordinator.
type Config struct {
	OrderSize decimal.Decimal // shares bought per leg
	LockTTL   time.Duration   // distributed lock lease
	DedupTTL  time.Duration
}

// Coordinator serialises executions. At most one Execute runs at a time in
// this process; with a LockManager attached, at most one across processes.
type Coordinator struct {
	cfg       Config
	placer    OrderPlacer
	validator Validator
	breaker   domain.CircuitBreaker
	notifier  domain.Notifier
	recorder  Recorder
	dedup     *Dedup
	logger    *slog.Logger

	locks    domain.LockManager
	journals []domain.ArbJournal

	mu    sync.Mutex
	state atomic.Value // domain.ExecutionState
	now   func() time.Time
}

// NewCoordinator creates a Coordinator. notifier and recorder may be nil.
func NewCoordinator(
	cfg Config,
	placer OrderPlacer,
	validator Validator,
	breaker domain.CircuitBreaker,
	notifier domain.Notifier,
	recorder Recorder,
	logger *slog.Logger,
) *Coordinator {
	if !cfg.OrderSize.IsPositive() {
		cfg.OrderSize = decimal.NewFromInt(10)
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = 10 * time.Minute
	}
	c := &Coordinator{
		cfg:       cfg,
		placer:    placer,
		validator: validator,
		breaker:   breaker,
		notifier:  notifier,
		recorder:  recorder,
		dedup:     NewDedup(cfg.DedupTTL),
		logger:    logger.With(slog.String("component", "executor")),
		now:       time.Now,
	}
	c.state.Store(domain.StateIdle)
	return c
}

// SetLockManager enables the cross-process execution lock.
func (c *Coordinator) SetLockManager(lm domain.LockManager) {
	c.locks = lm
}

// AddJournal registers a sink that receives every settled result.
func (c *Coordinator) AddJournal(j domain.ArbJournal) {
	c.journals = append(c.journals, j)
}

// State returns the current state machine step.
func (c *Coordinator) State() domain.ExecutionState {
	return c.state.Load().(domain.ExecutionState)
}

// Execute runs opp through the state machine and returns the settled
// result. It never panics and never returns an error; the outcome is in
// res.Status.
func (c *Coordinator) Execute(ctx context.Context, opp domain.ArbitrageOpportunity) (res domain.ExecutionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.state.Store(domain.StateIdle)

	res = domain.ExecutionResult{
		ID:             uuid.NewString(),
		OpportunityID:  opp.ID,
		ExpectedProfit: opp.ExpectedProfit,
		StartedAt:      c.now().UTC(),
	}
	log := c.logger.With(
		slog.String("execution_id", res.ID),
		slog.String("opportunity_id", opp.ID),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("execution panicked", slog.Any("panic", r))
			res.Status = domain.ExecFailed
			if res.FilledLegs() > 0 {
				res.Status = domain.ExecPartial
			}
			res.Reason = fmt.Sprintf("panic: %v", r)
			res.CompletedAt = c.now().UTC()
			c.recordFailure(ctx, log, res.ID)
			if res.Status == domain.ExecPartial {
				c.recordLoss(ctx, log, res.FilledCost())
			}
			c.settle(ctx, log, opp, res)
		}
	}()

	c.state.Store(domain.StateValidating)
	if err := c.validate(opp); err != nil {
		res.Status = domain.ExecRejected
		res.Reason = err.Error()
		res.CompletedAt = c.now().UTC()
		log.Info("execution rejected", slog.String("reason", res.Reason))
		c.settle(ctx, log, opp, res)
		return res
	}

	if c.locks != nil {
		unlock, err := c.locks.Acquire(ctx, executionLockKey, c.cfg.LockTTL)
		if err != nil {
			res.Status = domain.ExecRejected
			res.Reason = fmt.Sprintf("execution lock: %v", err)
			res.CompletedAt = c.now().UTC()
			log.Warn("execution lock unavailable", slog.String("error", err.Error()))
			c.recordFailure(ctx, log, res.ID)
			c.settle(ctx, log, opp, res)
			return res
		}
		defer unlock()
	}

	c.state.Store(domain.StateCircuitCheck)
	if halt := c.breaker.CheckTradeAllowed(ctx, res.ID); halt != nil {
		res.Status = domain.ExecHalted
		res.Reason = fmt.Sprintf("%v: %s", domain.ErrTradingHalted, halt.Reason)
		res.CompletedAt = c.now().UTC()
		c.breaker.RecordTradeResult(ctx, false, res.ID)
		log.Warn("execution halted by circuit breaker", slog.String("reason", halt.Reason))
		c.settle(ctx, log, opp, res)
		return res
	}

	c.state.Store(domain.StateExecuting)
	c.dedup.Mark(opp.ID)
	res.Legs = c.placeLegs(ctx, log, opp)
	res.CompletedAt = c.now().UTC()

	c.state.Store(domain.StateSettled)
	switch filled := res.FilledLegs(); {
	case filled == len(res.Legs):
		res.Status = domain.ExecFilled
		c.breaker.RecordTradeResult(ctx, true, res.ID)
		c.breaker.RecordProfit(ctx, lockedProfit(opp, c.cfg.OrderSize))
	case filled > 0:
		res.Status = domain.ExecPartial
		res.Reason = fmt.Sprintf("%d of %d legs filled, position unhedged", filled, len(res.Legs))
		c.breaker.RecordTradeResult(ctx, false, res.ID)
		c.breaker.RecordProfit(ctx, -res.FilledCost())
	default:
		res.Status = domain.ExecFailed
		res.Reason = firstLegError(res.Legs)
		c.breaker.RecordTradeResult(ctx, false, res.ID)
	}
	c.settle(ctx, log, opp, res)
	return res
}

// validate re-runs the risk filter and rejects bundles already traded.
func (c *Coordinator) validate(opp domain.ArbitrageOpportunity) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: validation panicked: %v", domain.ErrRiskRejected, r)
		}
	}()
	if c.dedup.Seen(opp.ID) {
		return fmt.Errorf("%w: %s already executed", domain.ErrInvalidOpportunity, opp.ID)
	}
	c.dedup.Cleanup()
	return c.validator.Evaluate(opp)
}

// placeLegs buys each market in order. The first failed leg stops the
// sequence; remaining legs are reported as skipped.
func (c *Coordinator) placeLegs(ctx context.Context, log *slog.Logger, opp domain.ArbitrageOpportunity) []domain.LegResult {
	legs := make([]domain.LegResult, 0, len(opp.Markets))
	failed := false
	for _, id := range opp.Markets {
		leg := domain.LegResult{
			MarketID: id,
			Price:    opp.AskPrices[id],
			Size:     c.cfg.OrderSize,
		}
		if failed {
			leg.Skipped = true
			leg.Error = "skipped after earlier leg failed"
			legs = append(legs, leg)
			continue
		}

		orderID, err := c.placeOne(ctx, leg)
		if err != nil {
			log.Error("leg order failed",
				slog.String("market", id),
				slog.String("error", err.Error()),
			)
			leg.Error = err.Error()
			failed = true
		} else {
			leg.OrderID = orderID
			leg.Success = true
			log.Info("leg order placed",
				slog.String("market", id),
				slog.String("order_id", orderID),
				slog.String("price", leg.Price.String()),
			)
		}
		legs = append(legs, leg)
	}
	return legs
}

func (c *Coordinator) placeOne(ctx context.Context, leg domain.LegResult) (orderID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("place order panicked: %v", r)
		}
	}()
	if !leg.Price.IsPositive() {
		return "", errors.New("no limit price for leg")
	}
	return c.placer.PlaceOrder(ctx, leg.MarketID, domain.OrderSideBuy, leg.Size, leg.Price)
}

func (c *Coordinator) recordFailure(ctx context.Context, log *slog.Logger, id string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("circuit breaker panicked", slog.Any("panic", r))
		}
	}()
	c.breaker.RecordTradeResult(ctx, false, id)
}

// recordLoss books the cost of an unhedged position against the daily limit.
func (c *Coordinator) recordLoss(ctx context.Context, log *slog.Logger, cost float64) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("circuit breaker panicked", slog.Any("panic", r))
		}
	}()
	c.breaker.RecordProfit(ctx, -cost)
}

// settle records, journals and notifies. Every sink is best-effort.
func (c *Coordinator) settle(ctx context.Context, log *slog.Logger, opp domain.ArbitrageOpportunity, res domain.ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("settlement sink panicked", slog.Any("panic", r))
		}
	}()
	if c.recorder != nil {
		c.recorder.RecordExecution(res)
	}
	for _, j := range c.journals {
		if err := j.RecordExecution(ctx, res); err != nil {
			log.Warn("journal execution failed", slog.String("error", err.Error()))
		}
	}

	log.Info("execution settled",
		slog.String("status", string(res.Status)),
		slog.Int("filled_legs", res.FilledLegs()),
		slog.Duration("elapsed", res.CompletedAt.Sub(res.StartedAt)),
	)

	if c.notifier == nil {
		return
	}
	var event, title string
	switch res.Status {
	case domain.ExecFilled:
		event, title = EventExecuted, "Arbitrage executed"
	case domain.ExecPartial:
		event, title = EventPartial, "PARTIAL FILL: unhedged position"
	default:
		event, title = EventFailed, "Arbitrage not executed"
	}
	if err := c.notifier.Notify(ctx, event, title, formatResult(opp, res)); err != nil {
		log.Warn("notification failed", slog.String("error", err.Error()))
	}
}

// lockedProfit is payout minus cost for size shares of each leg.
func lockedProfit(opp domain.ArbitrageOpportunity, size decimal.Decimal) float64 {
	return (1 - opp.TotalCost) * size.InexactFloat64()
}

func firstLegError(legs []domain.LegResult) string {
	for _, l := range legs {
		if l.Error != "" && !l.Skipped {
			return l.Error
		}
	}
	return "no legs placed"
}

func formatResult(opp domain.ArbitrageOpportunity, res domain.ExecutionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Opportunity: %s\n", opp.ID)
	fmt.Fprintf(&b, "Markets: %s\n", strings.Join(opp.Markets, ", "))
	fmt.Fprintf(&b, "Status: %s\n", res.Status)
	fmt.Fprintf(&b, "Edge: %.2f%%  Cost: %.4f  Expected: $%.2f\n", opp.Edge*100, opp.TotalCost, opp.ExpectedProfit)
	for _, l := range res.Legs {
		switch {
		case l.Success:
			fmt.Fprintf(&b, "  %s @ %s: order %s\n", l.MarketID, l.Price, l.OrderID)
		case l.Skipped:
			fmt.Fprintf(&b, "  %s: skipped\n", l.MarketID)
		default:
			fmt.Fprintf(&b, "  %s: %s\n", l.MarketID, l.Error)
		}
	}
	if res.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", res.Reason)
	}
	return b.String()
}
