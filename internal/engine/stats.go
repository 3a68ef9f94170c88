package engine

import (
	"sync"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Statistics holds the engine counters. It implements executor.Recorder.
type Statistics struct {
	mu  sync.Mutex
	cur domain.EngineStatistics
}

func newStatistics(start time.Time) *Statistics {
	return &Statistics{cur: domain.EngineStatistics{StartTime: start}}
}

// RecordExecution folds a settled result into the counters. A partial fill
// books its filled cost as loss. Rejected and halted attempts leave the
// counters unchanged.
func (s *Statistics) RecordExecution(res domain.ExecutionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch res.Status {
	case domain.ExecFilled:
		s.cur.ArbitragesExecuted++
		s.cur.TotalProfit += res.ExpectedProfit
	case domain.ExecPartial:
		s.cur.PartialFills++
		s.cur.TotalLoss += res.FilledCost()
	case domain.ExecFailed:
		s.cur.FailedExecutions++
	}
}

func (s *Statistics) recordScan(at time.Time, found int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.ScansCompleted++
	s.cur.OpportunitiesDetected += int64(found)
	s.cur.LastScanAt = at
}

func (s *Statistics) snapshot() domain.EngineStatistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}
