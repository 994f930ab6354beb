package session

import (
	"context"
	"log/slog"
)

// LogIntegration is the default Integration: it records finalized
// meetings in the service log. Deployments with real downstream systems
// (task trackers, chat notifiers) supply their own implementation.
type LogIntegration struct {
	logger *slog.Logger
}

// NewLogIntegration creates a log-backed integration notifier
func NewLogIntegration(logger *slog.Logger) *LogIntegration {
	return &LogIntegration{logger: logger}
}

// MeetingProcessed logs the finalized meeting artifacts
func (i *LogIntegration) MeetingProcessed(_ context.Context, meetingID string, segments []Segment, summary string, tasks []string) error {
	i.logger.Info("Meeting processed",
		slog.String("meeting_id", meetingID),
		slog.Int("segments", len(segments)),
		slog.Int("tasks", len(tasks)),
		slog.Int("summary_length", len(summary)),
	)
	return nil
}
