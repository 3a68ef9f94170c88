package postgres

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/arb?sslmode=disable",
		DSN(ClientConfig{Host: "db", Database: "arb", User: "u", Password: "p"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
	assert.Contains(t, DSN(ClientConfig{Host: "h", Port: 6543, SSLMode: "require"}), ":6543/?sslmode=require")
}

func TestMigrationsEmbedded(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_arb_journal.sql", names[0])
}

func TestOpportunityDocs(t *testing.T) {
	opp := domain.ArbitrageOpportunity{
		ID:      "bundle_1",
		Markets: []string{"a", "b"},
		AskPrices: map[string]decimal.Decimal{
			"a": decimal.RequireFromString("0.45"),
			"b": decimal.RequireFromString("0.50"),
		},
		Correlations: map[string]domain.CorrelationPair{
			"a|b": {MarketA: "a", MarketB: "b", Correlation: 0.9, SampleSize: 10, Significance: 0.1},
		},
	}
	asks, corrs, err := opportunityDocs(opp)
	require.NoError(t, err)

	var prices map[string]string
	require.NoError(t, json.Unmarshal(asks, &prices))
	assert.Equal(t, map[string]string{"a": "0.45", "b": "0.5"}, prices)

	var rows map[string]correlationRow
	require.NoError(t, json.Unmarshal(corrs, &rows))
	assert.InDelta(t, 0.9, rows["a|b"].Correlation, 1e-9)
	assert.Equal(t, 10, rows["a|b"].SampleSize)
}
