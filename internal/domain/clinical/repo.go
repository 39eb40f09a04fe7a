package clinical

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ContextRepository reads a patient's clinical context.
type ContextRepository interface {
	ActiveAllergies(ctx context.Context, patientID uuid.UUID) ([]*Allergy, error)
	ActiveConditions(ctx context.Context, patientID uuid.UUID) ([]*Condition, error)
	// RecentAbnormalLabs returns abnormal results collected at or after since,
	// most recent first.
	RecentAbnormalLabs(ctx context.Context, patientID uuid.UUID, since time.Time) ([]*LabResult, error)
}
