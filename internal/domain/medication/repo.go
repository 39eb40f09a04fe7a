package medication

import (
	"context"

	"github.com/google/uuid"
)

type MedicationRepository interface {
	Create(ctx context.Context, m *Medication) error
	GetByID(ctx context.Context, id uuid.UUID) (*Medication, error)
	List(ctx context.Context, limit, offset int) ([]*Medication, int, error)
}

type PrescriptionRepository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Prescription, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}

type AdministrationRepository interface {
	Create(ctx context.Context, a *Administration) error
	ListByPrescription(ctx context.Context, prescriptionID uuid.UUID) ([]*Administration, error)
}
