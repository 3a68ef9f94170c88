package notify

import (
	"context"
	"log/slog"
)

// LogSender writes alerts to the structured log. It is always registered so
// alerts survive when no chat channel is configured.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With(slog.String("component", "alert"))}
}

// Send logs the alert at warn level.
func (l *LogSender) Send(ctx context.Context, title, message string) error {
	l.logger.WarnContext(ctx, title, slog.String("message", message))
	return nil
}

// Name returns the sender identifier.
func (l *LogSender) Name() string {
	return "log"
}
