package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/polyarb/internal/breaker"
	"github.com/alanyoungcy/polyarb/internal/domain"
)

// EngineView is the part of the engine the API reads.
type EngineView interface {
	Statistics() domain.EngineStatistics
	LastOpportunities() []domain.ArbitrageOpportunity
	ResetVolatility()
}

// BreakerView exposes the circuit breaker state.
type BreakerView interface {
	Snapshot() breaker.State
}

// EngineHandler serves statistics, the last scan and breaker state.
type EngineHandler struct {
	engine  EngineView
	breaker BreakerView
	logger  *slog.Logger
}

// NewEngineHandler creates an EngineHandler. breaker may be nil.
func NewEngineHandler(engine EngineView, breaker BreakerView, logger *slog.Logger) *EngineHandler {
	return &EngineHandler{
		engine:  engine,
		breaker: breaker,
		logger:  logger.With(slog.String("handler", "engine")),
	}
}

type cacheDTO struct {
	Size      int     `json:"size"`
	MaxSize   int     `json:"max_size"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	HitRatio  float64 `json:"hit_ratio"`
}

type statisticsDTO struct {
	OpportunitiesDetected int64               `json:"opportunities_detected"`
	ArbitragesExecuted    int64               `json:"arbitrages_executed"`
	PartialFills          int64               `json:"partial_fills"`
	FailedExecutions      int64               `json:"failed_executions"`
	ScansCompleted        int64               `json:"scans_completed"`
	TotalProfit           float64             `json:"total_profit"`
	TotalLoss             float64             `json:"total_loss"`
	UptimeSeconds         int64               `json:"uptime_seconds"`
	LastScanAt            *time.Time          `json:"last_scan_at,omitempty"`
	HighVolatility        bool                `json:"high_volatility"`
	Caches                map[string]cacheDTO `json:"caches"`
}

// GetStatistics returns the engine counters.
// GET /api/statistics
func (h *EngineHandler) GetStatistics(w http.ResponseWriter, _ *http.Request) {
	s := h.engine.Statistics()
	out := statisticsDTO{
		OpportunitiesDetected: s.OpportunitiesDetected,
		ArbitragesExecuted:    s.ArbitragesExecuted,
		PartialFills:          s.PartialFills,
		FailedExecutions:      s.FailedExecutions,
		ScansCompleted:        s.ScansCompleted,
		TotalProfit:           s.TotalProfit,
		TotalLoss:             s.TotalLoss,
		UptimeSeconds:         int64(s.Uptime(time.Now()).Seconds()),
		HighVolatility:        s.HighVolatility,
		Caches:                make(map[string]cacheDTO, len(s.Caches)),
	}
	if !s.LastScanAt.IsZero() {
		out.LastScanAt = &s.LastScanAt
	}
	for name, c := range s.Caches {
		out.Caches[name] = cacheDTO(c)
	}
	writeJSON(w, http.StatusOK, out)
}

type opportunityDTO struct {
	ID             string            `json:"id"`
	Markets        []string          `json:"markets"`
	AskPrices      map[string]string `json:"ask_prices"`
	Edge           float64           `json:"edge"`
	TotalCost      float64           `json:"total_cost"`
	ExpectedProfit float64           `json:"expected_profit"`
	Liquidity      float64           `json:"liquidity"`
	TimeDecay      float64           `json:"time_decay"`
	RiskLevel      string            `json:"risk_level"`
	DetectedAt     time.Time         `json:"detected_at"`
}

// ListOpportunities returns the opportunities of the last scan.
// GET /api/opportunities?limit=N
func (h *EngineHandler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	opps := h.engine.LastOpportunities()
	limit := queryLimit(r, 50, 500)
	if len(opps) > limit {
		opps = opps[:limit]
	}

	out := make([]opportunityDTO, 0, len(opps))
	for _, o := range opps {
		asks := make(map[string]string, len(o.AskPrices))
		for id, p := range o.AskPrices {
			asks[id] = p.String()
		}
		out = append(out, opportunityDTO{
			ID:             o.ID,
			Markets:        o.Markets,
			AskPrices:      asks,
			Edge:           o.Edge,
			TotalCost:      o.TotalCost,
			ExpectedProfit: o.ExpectedProfit,
			Liquidity:      o.Liquidity,
			TimeDecay:      o.TimeDecayFactor,
			RiskLevel:      string(o.RiskLevel),
			DetectedAt:     o.DetectedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": out, "count": len(out)})
}

// ResetVolatility clears the high-volatility pause.
// POST /api/volatility/reset
func (h *EngineHandler) ResetVolatility(w http.ResponseWriter, r *http.Request) {
	h.engine.ResetVolatility()
	h.logger.InfoContext(r.Context(), "high volatility flag reset via api")
	writeJSON(w, http.StatusOK, map[string]any{"high_volatility": false})
}

// GetBreaker returns the circuit breaker state.
// GET /api/breaker
func (h *EngineHandler) GetBreaker(w http.ResponseWriter, _ *http.Request) {
	if h.breaker == nil {
		writeError(w, http.StatusNotFound, "circuit breaker not configured")
		return
	}
	s := h.breaker.Snapshot()
	out := map[string]any{
		"day":                  s.Day,
		"daily_pnl":            s.DailyPnL,
		"consecutive_failures": s.ConsecutiveFailures,
		"trips":                s.Trips,
		"halted":               time.Now().Before(s.HaltedUntil),
	}
	if !s.HaltedUntil.IsZero() {
		out["halted_until"] = s.HaltedUntil.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, out)
}
