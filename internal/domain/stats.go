package domain

import "time"

// EngineStatistics is a point-in-time copy of the engine counters.
type EngineStatistics struct {
	OpportunitiesDetected int64
	ArbitragesExecuted    int64
	PartialFills          int64
	FailedExecutions      int64
	ScansCompleted        int64
	TotalProfit           float64
	TotalLoss             float64
	StartTime             time.Time
	LastScanAt            time.Time
	HighVolatility        bool
	HighVolatilitySince   time.Time
	Caches                map[string]CacheStats
}

// Uptime returns how long the engine has been running at now.
func (s EngineStatistics) Uptime(now time.Time) time.Duration {
	if s.StartTime.IsZero() {
		return 0
	}
	return now.Sub(s.StartTime)
}
