package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExecutionState is a step of the execution state machine.
type ExecutionState string

const (
	StateIdle         ExecutionState = "idle"
	StateValidating   ExecutionState = "validating"
	StateCircuitCheck ExecutionState = "circuit_check"
	StateExecuting    ExecutionState = "executing"
	StateSettled      ExecutionState = "settled"
)

// ExecutionStatus is the terminal outcome of one execution attempt.
type ExecutionStatus string

const (
	ExecFilled   ExecutionStatus = "filled"   // every leg placed
	ExecPartial  ExecutionStatus = "partial"  // some legs placed, position unhedged
	ExecFailed   ExecutionStatus = "failed"   // no leg placed
	ExecRejected ExecutionStatus = "rejected" // risk re-validation failed
	ExecHalted   ExecutionStatus = "halted"   // circuit breaker refused
)

// LegResult records the outcome of a single order.
type LegResult struct {
	MarketID string
	OrderID  string
	Price    decimal.Decimal
	Size     decimal.Decimal
	Success  bool
	Skipped  bool
	Error    string
}

// ExecutionResult is the full record of an execution attempt.
type ExecutionResult struct {
	ID             string
	OpportunityID  string
	Status         ExecutionStatus
	Reason         string
	Legs           []LegResult
	ExpectedProfit float64
	StartedAt      time.Time
	CompletedAt    time.Time
}

// Succeeded reports whether every leg was placed.
func (r ExecutionResult) Succeeded() bool {
	return r.Status == ExecFilled
}

// FilledLegs counts legs that were placed successfully.
func (r ExecutionResult) FilledLegs() int {
	n := 0
	for _, l := range r.Legs {
		if l.Success {
			n++
		}
	}
	return n
}

// FilledCost is the notional spent on placed legs, price times size.
func (r ExecutionResult) FilledCost() float64 {
	total := decimal.Zero
	for _, l := range r.Legs {
		if l.Success {
			total = total.Add(l.Price.Mul(l.Size))
		}
	}
	return total.InexactFloat64()
}
