package override

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, o *Override) error
	// FindActive returns the newest override for the pair with expires_at
	// after now, or ErrNotFound.
	FindActive(ctx context.Context, interactionID, patientID uuid.UUID, now time.Time) (*Override, error)
	// FindLatest returns the override for the pair with the latest expiry,
	// expired or not, or ErrNotFound.
	FindLatest(ctx context.Context, interactionID, patientID uuid.UUID) (*Override, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Override, int, error)
}
