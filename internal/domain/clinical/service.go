package clinical

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	repo      ContextRepository
	labWindow time.Duration
	now       func() time.Time
}

func NewService(repo ContextRepository, labWindow time.Duration) *Service {
	return &Service{repo: repo, labWindow: labWindow, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Snapshot loads the full clinical context for a patient.
func (s *Service) Snapshot(ctx context.Context, patientID uuid.UUID) (*Snapshot, error) {
	since := s.now().Add(-s.labWindow)
	allergies, err := s.repo.ActiveAllergies(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("load allergies: %w", err)
	}
	conditions, err := s.repo.ActiveConditions(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("load conditions: %w", err)
	}
	labs, err := s.repo.RecentAbnormalLabs(ctx, patientID, since)
	if err != nil {
		return nil, fmt.Errorf("load labs: %w", err)
	}
	return &Snapshot{
		PatientID:  patientID,
		Allergies:  allergies,
		Conditions: conditions,
		Labs:       labs,
		Since:      since,
	}, nil
}
