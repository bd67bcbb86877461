package events

import (
	"context"

	"github.com/korle-health/clinic-platform/pkg/logging"
)

// LogHandler surfaces outbox events as error-level log lines. It is the
// default delivery target until a message broker is attached; reconciliation
// events must reach the on-call channel through log alerting either way.
type LogHandler struct {
	logger *logging.Logger
}

// NewLogHandler creates a log-based delivery handler.
func NewLogHandler(logger *logging.Logger) *LogHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogHandler{logger: logger}
}

// Handle logs the event.
func (h *LogHandler) Handle(_ context.Context, entry OutboxEntry) error {
	h.logger.Error("outbox event requires attention",
		"event_id", entry.ID,
		"type", entry.Type,
		"user_id", entry.UserID,
		"payload", string(entry.Payload),
	)
	return nil
}
