package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/medsafety/internal/platform/auth"
	"github.com/ehr/medsafety/internal/platform/metrics"
)

type Recorder struct {
	sink    Sink
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewRecorder(sink Sink, logger zerolog.Logger) *Recorder {
	return &Recorder{sink: sink, logger: logger, now: time.Now}
}

func (r *Recorder) WithMetrics(m *metrics.Metrics) *Recorder {
	r.metrics = m
	return r
}

func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// Record stamps and delivers one event. It returns false when delivery
// failed; the failure is logged and counted but never returned as an error.
// A nil Recorder or one without a sink accepts everything.
func (r *Recorder) Record(ctx context.Context, eventType, resourceType, resourceID string, detail map[string]interface{}, severity Severity) bool {
	if r == nil || r.sink == nil {
		return true
	}
	e := Event{
		ID:           uuid.New(),
		Type:         eventType,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Severity:     severity,
		ActorID:      auth.UserIDFromContext(ctx),
		Detail:       detail,
		RecordedAt:   r.now().UTC(),
	}
	if err := r.sink.Write(ctx, e); err != nil {
		r.logger.Error().Err(err).
			Str("event_type", eventType).
			Str("resource_type", resourceType).
			Str("resource_id", resourceID).
			Msg("audit delivery failed")
		r.metrics.RecordAuditFailure(eventType)
		return false
	}
	return true
}
