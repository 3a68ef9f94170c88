package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Channel and stream names used by EventJournal.
const (
	ChannelOpportunities = "polyarb:opportunities"
	ChannelExecutions    = "polyarb:executions"
	StreamExecutions     = "polyarb:executions:log"
)

type opportunityEvent struct {
	ID             string    `json:"id"`
	Markets        []string  `json:"markets"`
	Edge           float64   `json:"edge"`
	TotalCost      float64   `json:"total_cost"`
	ExpectedProfit float64   `json:"expected_profit"`
	Liquidity      float64   `json:"liquidity"`
	TimeDecay      float64   `json:"time_decay"`
	RiskLevel      string    `json:"risk_level"`
	DetectedAt     time.Time `json:"detected_at"`
}

type legEvent struct {
	MarketID string `json:"market_id"`
	OrderID  string `json:"order_id,omitempty"`
	Price    string `json:"price"`
	Size     string `json:"size"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

type executionEvent struct {
	ID             string     `json:"id"`
	OpportunityID  string     `json:"opportunity_id"`
	Status         string     `json:"status"`
	Reason         string     `json:"reason,omitempty"`
	ExpectedProfit float64    `json:"expected_profit"`
	Legs           []legEvent `json:"legs"`
	CompletedAt    time.Time  `json:"completed_at"`
}

// EventJournal implements domain.ArbJournal by broadcasting JSON events on a
// SignalBus. Executions are also appended to a stream.
type EventJournal struct {
	bus domain.SignalBus
}

// NewEventJournal creates an EventJournal on top of bus.
func NewEventJournal(bus domain.SignalBus) *EventJournal {
	return &EventJournal{bus: bus}
}

// RecordOpportunity publishes opp on ChannelOpportunities.
func (j *EventJournal) RecordOpportunity(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	payload, err := json.Marshal(opportunityEvent{
		ID:             opp.ID,
		Markets:        opp.Markets,
		Edge:           opp.Edge,
		TotalCost:      opp.TotalCost,
		ExpectedProfit: opp.ExpectedProfit,
		Liquidity:      opp.Liquidity,
		TimeDecay:      opp.TimeDecayFactor,
		RiskLevel:      string(opp.RiskLevel),
		DetectedAt:     opp.DetectedAt,
	})
	if err != nil {
		return fmt.Errorf("redis: marshal opportunity: %w", err)
	}
	return j.bus.Publish(ctx, ChannelOpportunities, payload)
}

// RecordExecution publishes res and appends it to StreamExecutions.
func (j *EventJournal) RecordExecution(ctx context.Context, res domain.ExecutionResult) error {
	legs := make([]legEvent, 0, len(res.Legs))
	for _, l := range res.Legs {
		legs = append(legs, legEvent{
			MarketID: l.MarketID,
			OrderID:  l.OrderID,
			Price:    l.Price.String(),
			Size:     l.Size.String(),
			Success:  l.Success,
			Error:    l.Error,
		})
	}
	payload, err := json.Marshal(executionEvent{
		ID:             res.ID,
		OpportunityID:  res.OpportunityID,
		Status:         string(res.Status),
		Reason:         res.Reason,
		ExpectedProfit: res.ExpectedProfit,
		Legs:           legs,
		CompletedAt:    res.CompletedAt,
	})
	if err != nil {
		return fmt.Errorf("redis: marshal execution: %w", err)
	}
	if err := j.bus.Publish(ctx, ChannelExecutions, payload); err != nil {
		return err
	}
	return j.bus.StreamAppend(ctx, StreamExecutions, payload)
}

var _ domain.ArbJournal = (*EventJournal)(nil)
