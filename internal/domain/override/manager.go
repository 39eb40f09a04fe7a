package override

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/medsafety/internal/platform/audit"
	"github.com/ehr/medsafety/internal/platform/metrics"
)

// MaxDurationDays bounds how long a single override may stay in force.
const MaxDurationDays = 365

type CreateRequest struct {
	InteractionID uuid.UUID `json:"interaction_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	ProviderID    string    `json:"provider_id"`
	Reason        string    `json:"reason"`
	DurationDays  int       `json:"duration_days"`
}

// Manager creates overrides and answers whether one applies right now.
// Nothing is cached: every query reads the repository with the current time.
type Manager struct {
	repo     Repository
	recorder *audit.Recorder
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time
	known    func(uuid.UUID) bool
}

func NewManager(repo Repository, recorder *audit.Recorder, logger zerolog.Logger) *Manager {
	return &Manager{repo: repo, recorder: recorder, logger: logger, now: time.Now}
}

func (m *Manager) WithMetrics(mt *metrics.Metrics) *Manager {
	m.metrics = mt
	return m
}

func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// WithInteractionValidator rejects overrides for interaction ids the rule
// store does not know.
func (m *Manager) WithInteractionValidator(known func(uuid.UUID) bool) *Manager {
	m.known = known
	return m
}

func (m *Manager) validate(req CreateRequest) error {
	switch {
	case req.InteractionID == uuid.Nil:
		return &ValidationError{Field: "interaction_id", Message: "is required"}
	case req.PatientID == uuid.Nil:
		return &ValidationError{Field: "patient_id", Message: "is required"}
	case strings.TrimSpace(req.ProviderID) == "":
		return &ValidationError{Field: "provider_id", Message: "is required"}
	case strings.TrimSpace(req.Reason) == "":
		return &ValidationError{Field: "reason", Message: "is required"}
	case req.DurationDays < 0 || req.DurationDays > MaxDurationDays:
		return &ValidationError{Field: "duration_days", Message: fmt.Sprintf("must be between 0 and %d", MaxDurationDays)}
	case m.known != nil && !m.known(req.InteractionID):
		return &ValidationError{Field: "interaction_id", Message: "unknown interaction"}
	}
	return nil
}

// CreateOverride stores a new override expiring DurationDays from now.
// Existing overrides for the same pair are left in place.
func (m *Manager) CreateOverride(ctx context.Context, req CreateRequest) (*Override, error) {
	if err := m.validate(req); err != nil {
		return nil, err
	}
	now := m.now()
	o := &Override{
		ID:            uuid.New(),
		InteractionID: req.InteractionID,
		PatientID:     req.PatientID,
		ProviderID:    strings.TrimSpace(req.ProviderID),
		Reason:        strings.TrimSpace(req.Reason),
		CreatedAt:     now,
		ExpiresAt:     now.AddDate(0, 0, req.DurationDays),
	}
	if err := m.repo.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("save override: %w", err)
	}
	m.metrics.RecordOverrideCreated()
	m.logger.Warn().
		Str("override_id", o.ID.String()).
		Str("interaction_id", o.InteractionID.String()).
		Str("patient_id", o.PatientID.String()).
		Str("provider_id", o.ProviderID).
		Time("expires_at", o.ExpiresAt).
		Msg("interaction override created")

	o.AuditDegraded = !m.recorder.Record(ctx, audit.EventOverrideCreated, "InteractionOverride", o.ID.String(),
		map[string]interface{}{
			"interaction_id": o.InteractionID.String(),
			"patient_id":     o.PatientID.String(),
			"provider_id":    o.ProviderID,
			"reason":         o.Reason,
			"expires_at":     o.ExpiresAt,
		}, audit.SeverityWarning)
	return o, nil
}

// IsActiveOverride returns the override in force for the pair at the time
// of the call, or nil when there is none.
func (m *Manager) IsActiveOverride(ctx context.Context, interactionID, patientID uuid.UUID) (*Override, error) {
	o, err := m.repo.FindActive(ctx, interactionID, patientID, m.now())
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active override: %w", err)
	}
	return o, nil
}

// Lookup is IsActiveOverride plus the expired case: when no override is in
// force but one existed, it is returned with LookupExpired.
func (m *Manager) Lookup(ctx context.Context, interactionID, patientID uuid.UUID) (Lookup, error) {
	active, err := m.IsActiveOverride(ctx, interactionID, patientID)
	if err != nil {
		return Lookup{}, err
	}
	if active != nil {
		return Lookup{Status: LookupActive, Override: active}, nil
	}
	latest, err := m.repo.FindLatest(ctx, interactionID, patientID)
	if errors.Is(err, ErrNotFound) {
		return Lookup{Status: LookupNone}, nil
	}
	if err != nil {
		return Lookup{}, fmt.Errorf("find latest override: %w", err)
	}
	if latest.ActiveAt(m.now()) {
		// Created between the two reads.
		return Lookup{Status: LookupActive, Override: latest}, nil
	}
	return Lookup{Status: LookupExpired, Override: latest}, nil
}

func (m *Manager) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Override, int, error) {
	return m.repo.ListByPatient(ctx, patientID, limit, offset)
}
