// Package ws streams detected opportunities and execution results to
// websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

// Channels a client can subscribe to. New clients get both.
const (
	ChannelOpportunities = "opportunities"
	ChannelExecutions    = "executions"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type envelope struct {
	Channel string `json:"channel"`
	Payload any    `json:"payload"`
}

type subscribeMsg struct {
	Action   string   `json:"action"` // subscribe | unsubscribe
	Channels []string `json:"channels"`
}

type opportunityEvent struct {
	ID             string            `json:"id"`
	Markets        []string          `json:"markets"`
	AskPrices      map[string]string `json:"ask_prices"`
	Edge           float64           `json:"edge"`
	TotalCost      float64           `json:"total_cost"`
	ExpectedProfit float64           `json:"expected_profit"`
	RiskLevel      string            `json:"risk_level"`
	DetectedAt     time.Time         `json:"detected_at"`
}

type executionEvent struct {
	ID            string    `json:"id"`
	OpportunityID string    `json:"opportunity_id"`
	Status        string    `json:"status"`
	Reason        string    `json:"reason,omitempty"`
	FilledLegs    int       `json:"filled_legs"`
	TotalLegs     int       `json:"total_legs"`
	CompletedAt   time.Time `json:"completed_at"`
}

// Hub fans engine events out to connected clients. It implements
// domain.ArbJournal so the engine can feed it like any other journal.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
	logger  *slog.Logger
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu   sync.RWMutex
	subs map[string]bool
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		logger:  logger.With(slog.String("component", "ws_hub")),
	}
}

// RecordOpportunity broadcasts opp on the opportunities channel.
func (h *Hub) RecordOpportunity(_ context.Context, opp domain.ArbitrageOpportunity) error {
	asks := make(map[string]string, len(opp.AskPrices))
	for id, p := range opp.AskPrices {
		asks[id] = p.String()
	}
	return h.broadcast(ChannelOpportunities, opportunityEvent{
		ID:             opp.ID,
		Markets:        opp.Markets,
		AskPrices:      asks,
		Edge:           opp.Edge,
		TotalCost:      opp.TotalCost,
		ExpectedProfit: opp.ExpectedProfit,
		RiskLevel:      string(opp.RiskLevel),
		DetectedAt:     opp.DetectedAt,
	})
}

// RecordExecution broadcasts res on the executions channel.
func (h *Hub) RecordExecution(_ context.Context, res domain.ExecutionResult) error {
	return h.broadcast(ChannelExecutions, executionEvent{
		ID:            res.ID,
		OpportunityID: res.OpportunityID,
		Status:        string(res.Status),
		Reason:        res.Reason,
		FilledLegs:    res.FilledLegs(),
		TotalLegs:     len(res.Legs),
		CompletedAt:   res.CompletedAt,
	})
}

func (h *Hub) broadcast(channel string, payload any) error {
	data, err := json.Marshal(envelope{Channel: channel, Payload: payload})
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.isSubscribed(channel) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping message for slow client", slog.String("channel", channel))
		}
	}
	return nil
}

// HandleWS upgrades the request and registers the client.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: map[string]bool{ChannelOpportunities: true, ChannelExecutions: true},
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client connected", slog.Int("total_clients", n))

	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client disconnected", slog.Int("total_clients", n))
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var sub subscribeMsg
		if json.Unmarshal(message, &sub) == nil {
			c.apply(sub)
		}
	}
}

func (c *client) apply(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range msg.Channels {
		switch msg.Action {
		case "subscribe":
			c.subs[ch] = true
		case "unsubscribe":
			delete(c.subs, ch)
		}
	}
}

func (c *client) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[channel]
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ domain.ArbJournal = (*Hub)(nil)
