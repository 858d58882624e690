package notification

import (
	"context"
	"log/slog"
)

// LogDispatcher writes events to the structured log. It is the default when no
// broker is configured.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, ev Event) error {
	d.logger.InfoContext(ctx, "workflow notification",
		"log_type", "notification",
		"subject", string(ev.Subject),
		"subject_id", ev.SubjectID,
		"client_id", ev.ClientID,
		"action", ev.Action,
		"from_status", ev.FromStatus,
		"to_status", ev.ToStatus,
		"request_id", ev.RequestID,
	)
	return nil
}
