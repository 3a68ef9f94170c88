// Package breaker implements the in-process circuit breaker: a daily loss
// limit and a consecutive-failure trip with cooldown. The UTC day boundary
// resets the daily P&L.
package breaker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Config holds the breaker limits. A zero MaxDailyLoss or
// MaxConsecutiveFailures disables that rule.
type Config struct {
	MaxDailyLoss           float64
	MaxConsecutiveFailures int
	Cooldown               time.Duration
}

// State is a snapshot for logging and statistics.
type State struct {
	Day                 string
	DailyPnL            float64
	ConsecutiveFailures int
	HaltedUntil         time.Time
	Trips               int
}

// Breaker implements domain.CircuitBreaker.
type Breaker struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	day         string
	dailyPnL    float64
	consecutive int
	haltUntil   time.Time
	trips       int
}

// New creates a Breaker.
func New(cfg Config, logger *slog.Logger) *Breaker {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Minute
	}
	return &Breaker{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "circuit_breaker")),
		now:    time.Now,
	}
}

// CheckTradeAllowed returns a halt decision, or nil when trading may proceed.
func (b *Breaker) CheckTradeAllowed(_ context.Context, tradeID string) *domain.HaltDecision {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now().UTC()
	b.rollDay(now)

	if b.cfg.MaxDailyLoss > 0 && -b.dailyPnL >= b.cfg.MaxDailyLoss {
		return &domain.HaltDecision{
			Reason: fmt.Sprintf("daily loss %.2f reached limit %.2f", -b.dailyPnL, b.cfg.MaxDailyLoss),
			Until:  nextDay(now),
		}
	}

	if !b.haltUntil.IsZero() {
		if now.Before(b.haltUntil) {
			return &domain.HaltDecision{
				Reason: fmt.Sprintf("%d consecutive failures, cooling down", b.consecutive),
				Until:  b.haltUntil,
			}
		}
		b.logger.Info("circuit breaker cooldown elapsed", slog.String("trade_id", tradeID))
		b.haltUntil = time.Time{}
		b.consecutive = 0
	}
	return nil
}

// RecordTradeResult updates the consecutive-failure counter.
func (b *Breaker) RecordTradeResult(_ context.Context, success bool, tradeID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollDay(b.now().UTC())
	if success {
		b.consecutive = 0
		return
	}
	b.consecutive++
	if b.cfg.MaxConsecutiveFailures > 0 && b.consecutive >= b.cfg.MaxConsecutiveFailures && b.haltUntil.IsZero() {
		b.haltUntil = b.now().Add(b.cfg.Cooldown)
		b.trips++
		b.logger.Warn("circuit breaker tripped",
			slog.String("trade_id", tradeID),
			slog.Int("consecutive_failures", b.consecutive),
			slog.Time("until", b.haltUntil),
		)
	}
}

// RecordProfit adds amount (negative for a loss) to today's P&L.
func (b *Breaker) RecordProfit(_ context.Context, amount float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollDay(b.now().UTC())
	b.dailyPnL += amount
	if b.cfg.MaxDailyLoss > 0 && -b.dailyPnL >= b.cfg.MaxDailyLoss {
		b.logger.Warn("daily loss limit reached",
			slog.Float64("daily_pnl", b.dailyPnL),
			slog.Float64("limit", b.cfg.MaxDailyLoss),
		)
	}
}

// Snapshot returns the current state.
func (b *Breaker) Snapshot() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return State{
		Day:                 b.day,
		DailyPnL:            b.dailyPnL,
		ConsecutiveFailures: b.consecutive,
		HaltedUntil:         b.haltUntil,
		Trips:               b.trips,
	}
}

// rollDay resets the daily P&L when the UTC date changes. Caller holds mu.
func (b *Breaker) rollDay(now time.Time) {
	day := now.Format(time.DateOnly)
	if day == b.day {
		return
	}
	if b.day != "" {
		b.logger.Info("daily P&L reset",
			slog.String("previous_day", b.day),
			slog.Float64("pnl", b.dailyPnL),
		)
	}
	b.day = day
	b.dailyPnL = 0
}

func nextDay(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}

var _ domain.CircuitBreaker = (*Breaker)(nil)
