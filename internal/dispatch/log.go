package dispatch

import (
	"context"
	"log/slog"
)

// LogDispatcher writes alerts to the structured log and always reports delivery
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Send(ctx context.Context, alert Alert, destination string) (bool, error) {
	d.logger.Info("ALERT",
		"rule", alert.Rule,
		"triggered_at", alert.TriggeredAt,
		"run_id", alert.RunID,
		"message", alert.Message,
	)
	return true, nil
}
