package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyarb/internal/arbitrage"
	"github.com/alanyoungcy/polyarb/internal/config"
	"github.com/alanyoungcy/polyarb/internal/engine"
	"github.com/alanyoungcy/polyarb/internal/server"
	"github.com/alanyoungcy/polyarb/internal/server/handler"
)

const (
	statsInterval   = 5 * time.Minute
	shutdownTimeout = 10 * time.Second
)

// MonitorMode scans and alerts without placing orders.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")
	return a.runEngine(ctx, deps, false)
}

// TradeMode scans and executes the best opportunity of each cycle.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode",
		slog.String("wallet", deps.Clob.WalletAddress()),
	)
	return a.runEngine(ctx, deps, true)
}

func (a *App) runEngine(ctx context.Context, deps *Dependencies, autoExecute bool) error {
	ecfg := engineConfig(a.cfg)
	ecfg.AutoExecute = autoExecute

	eng, err := engine.New(ecfg, deps.Registry, engine.Deps{
		Market:   deps.Clob,
		Breaker:  deps.Breaker,
		Notifier: deps.Notifier,
		Expiry:   deps.Gamma,
		Locks:    deps.Locks,
		Journals: deps.Journals,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("app: build engine: %w", err)
	}

	a.describeRegistry(ctx, deps)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer stop()
		return eng.Run(gctx)
	})
	if deps.Archive != nil {
		g.Go(func() error {
			return deps.Archive.Run(gctx, a.cfg.Archive.FlushInterval.Duration)
		})
	}
	if a.cfg.Server.Enabled {
		srv := a.newServer(eng, deps)
		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				a.logStatistics(eng)
			}
		}
	})

	err = g.Wait()
	eng.Shutdown()
	a.logStatistics(eng)

	stats := eng.Statistics()
	_ = deps.Notifier.NotifyAll(context.WithoutCancel(ctx), "polyarb stopped", fmt.Sprintf(
		"Uptime %s\nScans %d\nDetected %d\nExecuted %d\nPartial %d\nFailed %d\nProfit %.2f / Loss %.2f",
		stats.Uptime(time.Now()).Round(time.Second), stats.ScansCompleted, stats.OpportunitiesDetected,
		stats.ArbitragesExecuted, stats.PartialFills, stats.FailedExecutions, stats.TotalProfit, stats.TotalLoss,
	))

	if errors.Is(err, context.Canceled) {
		return err
	}
	if err != nil {
		return fmt.Errorf("app: run: %w", err)
	}
	return nil
}

func (a *App) newServer(eng *engine.Engine, deps *Dependencies) *server.Server {
	sc := a.cfg.Server
	return server.NewServer(server.Config{
		Addr:        sc.Addr,
		CORSOrigins: sc.CORSOrigins,
		APIKey:      sc.APIKey,
		RateLimit:   sc.RequestsPerSecond,
		RateBurst:   sc.Burst,
	}, server.Handlers{
		Health: handler.NewHealthHandler(a.cfg.Mode, time.Now()),
		Engine: handler.NewEngineHandler(eng, deps.Breaker, a.logger),
	}, deps.Hub, a.logger)
}

// describeRegistry resolves each curated market through Gamma and logs its
// question. Unknown tokens only produce a warning.
func (a *App) describeRegistry(ctx context.Context, deps *Dependencies) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for _, id := range deps.Registry.Markets() {
		m, err := deps.Gamma.MarketByToken(ctx, id)
		if err != nil {
			a.logger.WarnContext(ctx, "registry market not resolvable",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		a.logger.InfoContext(ctx, "registry market",
			slog.String("market_id", id),
			slog.String("question", m.Question),
			slog.String("status", string(m.Status)),
		)
	}
}

func (a *App) logStatistics(eng *engine.Engine) {
	s := eng.Statistics()
	attrs := []any{
		slog.Int64("scans", s.ScansCompleted),
		slog.Int64("detected", s.OpportunitiesDetected),
		slog.Int64("executed", s.ArbitragesExecuted),
		slog.Int64("partial", s.PartialFills),
		slog.Int64("failed", s.FailedExecutions),
		slog.Float64("profit", s.TotalProfit),
		slog.Float64("loss", s.TotalLoss),
		slog.Bool("high_volatility", s.HighVolatility),
	}
	for name, c := range s.Caches {
		attrs = append(attrs, slog.Group("cache_"+name,
			slog.Int("size", c.Size),
			slog.Float64("hit_ratio", c.HitRatio),
		))
	}
	a.logger.Info("engine statistics", attrs...)
}

// engineConfig maps the [engine] section onto engine.Config.
func engineConfig(cfg *config.Config) engine.Config {
	e := cfg.Engine
	out := engine.DefaultConfig()

	out.PollInterval = e.PollInterval.Duration
	out.HaltBackoff = e.HaltBackoff.Duration
	out.VolatilityBackoff = e.VolatilityBackoff.Duration
	out.CorrelationThreshold = e.CorrelationThreshold
	out.Notional = e.Notional
	out.SlippageEstimate = e.SlippageEstimate
	out.Filter = arbitrage.FilterConfig{
		MaxPositionSize: e.MaxPositionSize,
		MinLiquidity:    e.MinLiquidity,
		MaxVolatility:   e.MaxVolatility,
		MaxSlippage:     e.MaxSlippage,
		MinTimeDecay:    e.MinTimeDecay,
		Notional:        e.Notional,
	}
	out.OrderSize = decimal.NewFromFloat(e.OrderSize)
	out.FetchBatchSize = e.FetchBatchSize
	out.BookCacheSize = e.BookCacheSize
	out.BookCacheTTL = e.BookCacheTTL.Duration
	out.VolatilityTTL = e.VolatilityCacheTTL.Duration
	out.VolatilityReset = e.VolatilityResetAfter.Duration
	out.DefaultDays = e.DefaultDaysToExpiry
	if e.AlertDedupTTL.Duration > 0 {
		out.AlertDedupTTL = e.AlertDedupTTL.Duration
	}
	return out
}
