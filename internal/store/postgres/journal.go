package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Journal records detected opportunities and execution outcomes.
type Journal struct {
	pool *pgxpool.Pool
}

// NewJournal creates a Journal on pool.
func NewJournal(pool *pgxpool.Pool) *Journal {
	return &Journal{pool: pool}
}

type correlationRow struct {
	MarketA      string  `json:"market_a"`
	MarketB      string  `json:"market_b"`
	Correlation  float64 `json:"correlation"`
	SampleSize   int     `json:"sample_size"`
	Significance float64 `json:"significance"`
	Category     string  `json:"category,omitempty"`
}

// opportunityDocs renders the JSONB columns of an opportunity.
func opportunityDocs(opp domain.ArbitrageOpportunity) (asks, corrs []byte, err error) {
	prices := make(map[string]string, len(opp.AskPrices))
	for id, p := range opp.AskPrices {
		prices[id] = p.String()
	}
	rows := make(map[string]correlationRow, len(opp.Correlations))
	for k, c := range opp.Correlations {
		rows[k] = correlationRow{
			MarketA:      c.MarketA,
			MarketB:      c.MarketB,
			Correlation:  c.Correlation,
			SampleSize:   c.SampleSize,
			Significance: c.Significance,
			Category:     c.Category,
		}
	}
	if asks, err = json.Marshal(prices); err != nil {
		return nil, nil, err
	}
	if corrs, err = json.Marshal(rows); err != nil {
		return nil, nil, err
	}
	return asks, corrs, nil
}

// RecordOpportunity inserts opp. Re-recording the same ID is a no-op.
func (j *Journal) RecordOpportunity(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	asks, corrs, err := opportunityDocs(opp)
	if err != nil {
		return fmt.Errorf("postgres: encode opportunity %s: %w", opp.ID, err)
	}
	_, err = j.pool.Exec(ctx, `
		INSERT INTO arb_opportunities (id, pair_key, markets, ask_prices, total_cost, edge, expected_profit,
			liquidity, slippage_estimate, time_decay_factor, risk_level, correlations, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING`,
		opp.ID, opp.PairKey(), opp.Markets, asks, opp.TotalCost, opp.Edge, opp.ExpectedProfit,
		opp.Liquidity, opp.SlippageEstimate, opp.TimeDecayFactor, string(opp.RiskLevel), corrs, opp.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert arb_opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// RecordExecution inserts res and its legs in one transaction.
func (j *Journal) RecordExecution(ctx context.Context, res domain.ExecutionResult) error {
	tx, err := j.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var completedAt *time.Time
	if !res.CompletedAt.IsZero() {
		completedAt = &res.CompletedAt
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO arb_executions (id, opportunity_id, status, reason, expected_profit, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		res.ID, res.OpportunityID, string(res.Status), res.Reason, res.ExpectedProfit, res.StartedAt, completedAt,
	); err != nil {
		return fmt.Errorf("postgres: insert arb_execution %s: %w", res.ID, err)
	}

	if len(res.Legs) > 0 {
		batch := &pgx.Batch{}
		for i, leg := range res.Legs {
			batch.Queue(`
				INSERT INTO arb_execution_legs (execution_id, leg_index, market_id, order_id, price, size, success, skipped, error)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				res.ID, i, leg.MarketID, leg.OrderID, leg.Price.String(), leg.Size.String(), leg.Success, leg.Skipped, leg.Error,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("postgres: insert arb_execution_legs %s: %w", res.ID, err)
		}
	}

	return tx.Commit(ctx)
}

var _ domain.ArbJournal = (*Journal)(nil)
