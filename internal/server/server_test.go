package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/breaker"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/server/handler"
)

type fakeEngine struct {
	stats  domain.EngineStatistics
	opps   []domain.ArbitrageOpportunity
	resets int
}

func (f *fakeEngine) Statistics() domain.EngineStatistics              { return f.stats }
func (f *fakeEngine) LastOpportunities() []domain.ArbitrageOpportunity { return f.opps }
func (f *fakeEngine) ResetVolatility()                                 { f.resets++ }

type fakeBreaker struct{ state breaker.State }

func (f fakeBreaker) Snapshot() breaker.State { return f.state }

func newTestServer(t *testing.T, apiKey string) (*httptest.Server, *fakeEngine) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := &fakeEngine{
		stats: domain.EngineStatistics{
			ScansCompleted:        4,
			OpportunitiesDetected: 2,
			StartTime:             time.Now().Add(-time.Minute),
			Caches:                map[string]domain.CacheStats{"order_books": {Size: 2, MaxSize: 1000}},
		},
		opps: []domain.ArbitrageOpportunity{{
			ID:        "bundle_1",
			Markets:   []string{"a", "b"},
			AskPrices: map[string]decimal.Decimal{"a": decimal.RequireFromString("0.45")},
			TotalCost: 0.95,
			RiskLevel: domain.RiskMedium,
		}},
	}
	srv := NewServer(Config{APIKey: apiKey}, Handlers{
		Health: handler.NewHealthHandler("monitor", time.Now()),
		Engine: handler.NewEngineHandler(eng, fakeBreaker{state: breaker.State{Day: "2026-10-16", Trips: 1}}, logger),
	}, nil, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, eng
}

func getJSON(t *testing.T, req *http.Request, out any) int {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestStatisticsAndOpportunities(t *testing.T) {
	ts, _ := newTestServer(t, "")

	var stats map[string]any
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/statistics", nil)
	require.Equal(t, http.StatusOK, getJSON(t, req, &stats))
	assert.EqualValues(t, 4, stats["scans_completed"])
	assert.Contains(t, stats["caches"], "order_books")

	var body struct {
		Count         int `json:"count"`
		Opportunities []struct {
			ID        string            `json:"id"`
			AskPrices map[string]string `json:"ask_prices"`
			RiskLevel string            `json:"risk_level"`
		} `json:"opportunities"`
	}
	req, _ = http.NewRequest(http.MethodGet, ts.URL+"/api/opportunities", nil)
	require.Equal(t, http.StatusOK, getJSON(t, req, &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "bundle_1", body.Opportunities[0].ID)
	assert.Equal(t, "0.45", body.Opportunities[0].AskPrices["a"])
	assert.Equal(t, "medium", body.Opportunities[0].RiskLevel)
}

func TestBreakerAndVolatilityReset(t *testing.T) {
	ts, eng := newTestServer(t, "")

	var st map[string]any
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/breaker", nil)
	require.Equal(t, http.StatusOK, getJSON(t, req, &st))
	assert.Equal(t, false, st["halted"])
	assert.EqualValues(t, 1, st["trips"])

	req, _ = http.NewRequest(http.MethodPost, ts.URL+"/api/volatility/reset", nil)
	require.Equal(t, http.StatusOK, getJSON(t, req, nil))
	assert.Equal(t, 1, eng.resets)

	req, _ = http.NewRequest(http.MethodGet, ts.URL+"/api/volatility/reset", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, getJSON(t, req, nil))
}

func TestAuth(t *testing.T) {
	ts, _ := newTestServer(t, "secret")

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/health", nil)
	assert.Equal(t, http.StatusOK, getJSON(t, req, nil), "health is public")

	req, _ = http.NewRequest(http.MethodGet, ts.URL+"/api/statistics", nil)
	assert.Equal(t, http.StatusUnauthorized, getJSON(t, req, nil))

	req, _ = http.NewRequest(http.MethodGet, ts.URL+"/api/statistics", nil)
	req.Header.Set("Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, getJSON(t, req, nil))

	req, _ = http.NewRequest(http.MethodGet, ts.URL+"/api/statistics", nil)
	req.Header.Set("X-API-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, getJSON(t, req, nil))
}
