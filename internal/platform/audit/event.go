// Package audit delivers safety-relevant events to one or more sinks.
// Delivery failures never fail the decision being audited; the Recorder
// reports them back so callers can flag the result as degraded.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event types emitted by the domain packages.
const (
	EventInteractionCheck       = "interaction.check"
	EventOverrideApplied        = "interaction.override-applied"
	EventOverrideExpired        = "interaction.override-expired"
	EventOverrideCreated        = "override.created"
	EventAdministrationVerified = "administration.verified"
	EventAdministrationRejected = "administration.rejected"
	EventSafetyBlock            = "administration.safety-block"
	EventAdministrationRecorded = "administration.recorded"
	EventAdministrationSkipped  = "administration.skipped"
	EventPrescriptionCompleted  = "prescription.completed"
)

type Event struct {
	ID           uuid.UUID              `json:"id"`
	Type         string                 `json:"event_type"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	Severity     Severity               `json:"severity"`
	ActorID      string                 `json:"actor_id,omitempty"`
	Detail       map[string]interface{} `json:"detail,omitempty"`
	RecordedAt   time.Time              `json:"recorded_at"`
}

// Sink persists or forwards events.
type Sink interface {
	Write(ctx context.Context, e Event) error
}

// MultiSink writes to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
