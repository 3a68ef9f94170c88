package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

type fakePutter struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    bool
}

func (p *fakePutter) Put(_ context.Context, key string, data io.Reader, contentType string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("unavailable")
	}
	if contentType != "application/x-ndjson" {
		return errors.New("unexpected content type " + contentType)
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if p.objects == nil {
		p.objects = make(map[string][]byte)
	}
	p.objects[key] = b
	return nil
}

func newTestArchive(p Putter) *Archive {
	a := NewArchive(p, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.now = func() time.Time { return time.Date(2026, 10, 16, 15, 30, 0, 0, time.UTC) }
	return a
}

func lines(t *testing.T, b []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	return out
}

func TestArchiveFlushWritesJSONL(t *testing.T) {
	p := &fakePutter{}
	a := newTestArchive(p)
	ctx := context.Background()

	require.NoError(t, a.RecordOpportunity(ctx, domain.ArbitrageOpportunity{
		ID:        "bundle_1",
		Markets:   []string{"a", "b"},
		AskPrices: map[string]decimal.Decimal{"a": decimal.RequireFromString("0.45")},
		RiskLevel: domain.RiskLow,
	}))
	require.NoError(t, a.RecordOpportunity(ctx, domain.ArbitrageOpportunity{ID: "bundle_2"}))
	require.NoError(t, a.RecordExecution(ctx, domain.ExecutionResult{
		ID:     "exec-1",
		Status: domain.ExecFilled,
		Legs: []domain.LegResult{{
			MarketID: "a", OrderID: "o1", Success: true,
			Price: decimal.RequireFromString("0.45"), Size: decimal.NewFromInt(10),
		}},
	}))
	assert.Equal(t, 3, a.Pending())

	require.NoError(t, a.Flush(ctx))
	assert.Zero(t, a.Pending())

	opps := lines(t, p.objects["archive/opportunities/2026-10-16/153000.000.jsonl"])
	require.Len(t, opps, 2)
	assert.Equal(t, "bundle_1", opps[0]["id"])
	assert.Equal(t, "0.45", opps[0]["ask_prices"].(map[string]any)["a"])

	execs := lines(t, p.objects["archive/executions/2026-10-16/153000.000.jsonl"])
	require.Len(t, execs, 1)
	assert.Equal(t, "filled", execs[0]["status"])
	leg := execs[0]["legs"].([]any)[0].(map[string]any)
	assert.Equal(t, "10", leg["size"])
}

func TestArchiveFlushFailureKeepsRecords(t *testing.T) {
	p := &fakePutter{fail: true}
	a := newTestArchive(p)
	ctx := context.Background()

	require.NoError(t, a.RecordOpportunity(ctx, domain.ArbitrageOpportunity{ID: "first"}))
	require.Error(t, a.Flush(ctx))
	assert.Equal(t, 1, a.Pending())

	require.NoError(t, a.RecordOpportunity(ctx, domain.ArbitrageOpportunity{ID: "second"}))
	p.fail = false
	require.NoError(t, a.Flush(ctx))

	got := lines(t, p.objects["archive/opportunities/2026-10-16/153000.000.jsonl"])
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0]["id"])
	assert.Equal(t, "second", got[1]["id"])
}

func TestArchiveRunFlushesOnCancel(t *testing.T) {
	p := &fakePutter{}
	a := newTestArchive(p)
	require.NoError(t, a.RecordExecution(context.Background(), domain.ExecutionResult{ID: "exec-1"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, a.Run(ctx, time.Hour))
	assert.Zero(t, a.Pending())
	assert.Len(t, p.objects, 1)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "https://s3.example", normaliseEndpoint("https://s3.example", false))
}

func TestNewRequiresBucketAndRegion(t *testing.T) {
	_, err := New(context.Background(), ClientConfig{Region: "us-east-1"})
	assert.Error(t, err)
	_, err = New(context.Background(), ClientConfig{Bucket: "b"})
	assert.Error(t, err)
}
