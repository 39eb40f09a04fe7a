package audit

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSink writes events to a zerolog logger. It never fails.
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) Write(_ context.Context, e Event) error {
	level := zerolog.InfoLevel
	switch e.Severity {
	case SeverityWarning:
		level = zerolog.WarnLevel
	case SeverityCritical:
		level = zerolog.ErrorLevel
	}
	s.Logger.WithLevel(level).
		Str("audit_id", e.ID.String()).
		Str("event_type", e.Type).
		Str("resource_type", e.ResourceType).
		Str("resource_id", e.ResourceID).
		Str("actor_id", e.ActorID).
		Interface("detail", e.Detail).
		Time("recorded_at", e.RecordedAt).
		Msg("audit")
	return nil
}
