package arbitrage

import (
	"log/slog"
	"math"
)

// failOpen is deferred by scoring steps whose neutral value is harmless. A
// panic is logged and the result replaced by neutral.
func failOpen[T any](logger *slog.Logger, step string, out *T, neutral T) {
	if r := recover(); r != nil {
		logger.Warn("scoring step failed, using neutral value",
			slog.String("step", step),
			slog.Any("panic", r),
		)
		*out = neutral
	}
}

// failClosed is deferred by gating steps. A panic is logged and the result
// replaced by the conservative verdict.
func failClosed[T any](logger *slog.Logger, step string, out *T, verdict T) {
	if r := recover(); r != nil {
		logger.Error("gating step failed, rejecting",
			slog.String("step", step),
			slog.Any("panic", r),
		)
		*out = verdict
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
