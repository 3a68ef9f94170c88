package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

func dial(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(ts.Close)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env map[string]any
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestHubBroadcastsEvents(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	conn := dial(t, hub)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.RecordOpportunity(context.Background(), domain.ArbitrageOpportunity{
		ID:        "bundle_1",
		AskPrices: map[string]decimal.Decimal{"a": decimal.RequireFromString("0.45")},
		TotalCost: 0.95,
	}))
	env := readEnvelope(t, conn)
	assert.Equal(t, ChannelOpportunities, env["channel"])
	assert.Equal(t, "bundle_1", env["payload"].(map[string]any)["id"])

	require.NoError(t, hub.RecordExecution(context.Background(), domain.ExecutionResult{
		ID:     "exec-1",
		Status: domain.ExecPartial,
		Legs:   []domain.LegResult{{Success: true}, {Success: false}},
	}))
	env = readEnvelope(t, conn)
	assert.Equal(t, ChannelExecutions, env["channel"])
	payload := env["payload"].(map[string]any)
	assert.Equal(t, "partial", payload["status"])
	assert.EqualValues(t, 1, payload["filled_legs"])
}

func TestHubUnsubscribe(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	conn := dial(t, hub)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "unsubscribe", Channels: []string{ChannelOpportunities}}))
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for c := range hub.clients {
			return !c.isSubscribed(ChannelOpportunities)
		}
		return false
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.RecordOpportunity(context.Background(), domain.ArbitrageOpportunity{ID: "skip"}))
	require.NoError(t, hub.RecordExecution(context.Background(), domain.ExecutionResult{ID: "exec-2", Status: domain.ExecFilled}))

	env := readEnvelope(t, conn)
	assert.Equal(t, ChannelExecutions, env["channel"], "opportunity was filtered")
}

func TestHubClose(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	conn := dial(t, hub)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Close()
	assert.Zero(t, hub.ClientCount())
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
