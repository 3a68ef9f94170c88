package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Putter stores one object. *Writer implements it.
type Putter interface {
	Put(ctx context.Context, key string, data io.Reader, contentType string) error
}

const (
	kindOpportunities = "opportunities"
	kindExecutions    = "executions"
)

type opportunityRecord struct {
	ID               string                     `json:"id"`
	Markets          []string                   `json:"markets"`
	AskPrices        map[string]decimal.Decimal `json:"ask_prices"`
	Edge             float64                    `json:"edge"`
	TotalCost        float64                    `json:"total_cost"`
	ExpectedProfit   float64                    `json:"expected_profit"`
	Liquidity        float64                    `json:"liquidity"`
	SlippageEstimate float64                    `json:"slippage_estimate"`
	TimeDecayFactor  float64                    `json:"time_decay_factor"`
	RiskLevel        string                     `json:"risk_level"`
	DetectedAt       time.Time                  `json:"detected_at"`
}

type legRecord struct {
	MarketID string          `json:"market_id"`
	OrderID  string          `json:"order_id,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Size     decimal.Decimal `json:"size"`
	Success  bool            `json:"success"`
	Skipped  bool            `json:"skipped,omitempty"`
	Error    string          `json:"error,omitempty"`
}

type executionRecord struct {
	ID             string      `json:"id"`
	OpportunityID  string      `json:"opportunity_id"`
	Status         string      `json:"status"`
	Reason         string      `json:"reason,omitempty"`
	ExpectedProfit float64     `json:"expected_profit"`
	Legs           []legRecord `json:"legs"`
	StartedAt      time.Time   `json:"started_at"`
	CompletedAt    time.Time   `json:"completed_at"`
}

// Archive buffers journal records in memory and uploads them as JSONL
// batches, one object per kind per flush:
//
//	archive/opportunities/2026-10-16/153000.000.jsonl
//	archive/executions/2026-10-16/153000.000.jsonl
//
// Records that fail to upload stay buffered for the next flush.
type Archive struct {
	put    Putter
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	pending map[string]*bytes.Buffer
	counts  map[string]int
}

// NewArchive creates an Archive that uploads through put.
func NewArchive(put Putter, logger *slog.Logger) *Archive {
	return &Archive{
		put:     put,
		logger:  logger.With(slog.String("component", "s3_archive")),
		now:     time.Now,
		pending: make(map[string]*bytes.Buffer),
		counts:  make(map[string]int),
	}
}

// RecordOpportunity buffers opp.
func (a *Archive) RecordOpportunity(_ context.Context, opp domain.ArbitrageOpportunity) error {
	return a.append(kindOpportunities, opportunityRecord{
		ID:               opp.ID,
		Markets:          opp.Markets,
		AskPrices:        opp.AskPrices,
		Edge:             opp.Edge,
		TotalCost:        opp.TotalCost,
		ExpectedProfit:   opp.ExpectedProfit,
		Liquidity:        opp.Liquidity,
		SlippageEstimate: opp.SlippageEstimate,
		TimeDecayFactor:  opp.TimeDecayFactor,
		RiskLevel:        string(opp.RiskLevel),
		DetectedAt:       opp.DetectedAt,
	})
}

// RecordExecution buffers res.
func (a *Archive) RecordExecution(_ context.Context, res domain.ExecutionResult) error {
	legs := make([]legRecord, 0, len(res.Legs))
	for _, l := range res.Legs {
		legs = append(legs, legRecord(l))
	}
	return a.append(kindExecutions, executionRecord{
		ID:             res.ID,
		OpportunityID:  res.OpportunityID,
		Status:         string(res.Status),
		Reason:         res.Reason,
		ExpectedProfit: res.ExpectedProfit,
		Legs:           legs,
		StartedAt:      res.StartedAt,
		CompletedAt:    res.CompletedAt,
	})
}

func (a *Archive) append(kind string, rec any) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("s3blob: encode %s record: %w", kind, err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	buf, ok := a.pending[kind]
	if !ok {
		buf = new(bytes.Buffer)
		a.pending[kind] = buf
	}
	buf.Write(line)
	buf.WriteByte('\n')
	a.counts[kind]++
	return nil
}

// Pending returns the number of buffered records.
func (a *Archive) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.counts {
		n += c
	}
	return n
}

// Flush uploads every non-empty buffer. On failure the batch is put back
// in front of records that arrived meanwhile.
func (a *Archive) Flush(ctx context.Context) error {
	a.mu.Lock()
	batches, counts := a.pending, a.counts
	a.pending = make(map[string]*bytes.Buffer)
	a.counts = make(map[string]int)
	a.mu.Unlock()

	ts := a.now().UTC()
	var firstErr error
	for kind, buf := range batches {
		if buf.Len() == 0 {
			continue
		}
		key := archiveKey(kind, ts)
		if err := a.put.Put(ctx, key, bytes.NewReader(buf.Bytes()), "application/x-ndjson"); err != nil {
			a.restore(kind, buf, counts[kind])
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		a.logger.Debug("archived journal batch",
			slog.String("key", key),
			slog.Int("records", counts[kind]),
		)
	}
	return firstErr
}

func (a *Archive) restore(kind string, batch *bytes.Buffer, n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if newer, ok := a.pending[kind]; ok {
		batch.Write(newer.Bytes())
	}
	a.pending[kind] = batch
	a.counts[kind] += n
}

// Run flushes every interval until ctx is cancelled, then flushes once more.
func (a *Archive) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			if err := a.Flush(fctx); err != nil {
				a.logger.Error("final archive flush failed",
					slog.String("error", err.Error()),
					slog.Int("pending", a.Pending()),
				)
			}
			return nil
		case <-ticker.C:
			if err := a.Flush(ctx); err != nil {
				a.logger.Warn("archive flush failed",
					slog.String("error", err.Error()),
					slog.Int("pending", a.Pending()),
				)
			}
		}
	}
}

func archiveKey(kind string, ts time.Time) string {
	return fmt.Sprintf("archive/%s/%s/%s.jsonl", kind, ts.Format(time.DateOnly), ts.Format("150405.000"))
}

var _ domain.ArbJournal = (*Archive)(nil)
