package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// MarketDataClient is the venue the engine reads books from and trades on.
type MarketDataClient interface {
	GetOrderBook(ctx context.Context, marketID string) (OrderBook, error)
	PlaceOrder(ctx context.Context, marketID string, side OrderSide, size, price decimal.Decimal) (orderID string, err error)
	WalletAddress() string
}

// HaltDecision explains why the circuit breaker refuses new trades.
type HaltDecision struct {
	Reason string
	Until  time.Time
}

// CircuitBreaker is the global trading halt consulted before every trade.
// CheckTradeAllowed returns nil when trading may proceed.
type CircuitBreaker interface {
	CheckTradeAllowed(ctx context.Context, tradeID string) *HaltDecision
	RecordTradeResult(ctx context.Context, success bool, tradeID string)
	RecordProfit(ctx context.Context, amount float64)
}

// Notifier delivers operator alerts. Delivery is best-effort; callers log
// and discard the returned error.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// ExpiryLookup resolves the scheduled resolution date of a market.
type ExpiryLookup interface {
	MarketEndDate(ctx context.Context, marketID string) (time.Time, error)
}

// ArbJournal is an append-only record of detected opportunities and
// execution outcomes. It is never read back into engine state.
type ArbJournal interface {
	RecordOpportunity(ctx context.Context, opp ArbitrageOpportunity) error
	RecordExecution(ctx context.Context, res ExecutionResult) error
}
