package medication

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	medications     MedicationRepository
	prescriptions   PrescriptionRepository
	administrations AdministrationRepository
	now             func() time.Time
}

func NewService(meds MedicationRepository, rxs PrescriptionRepository, admins AdministrationRepository) *Service {
	return &Service{
		medications:     meds,
		prescriptions:   rxs,
		administrations: admins,
		now:             time.Now,
	}
}

// -- Medication --

func (s *Service) CreateMedication(ctx context.Context, m *Medication) error {
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	return s.medications.Create(ctx, m)
}

func (s *Service) GetMedication(ctx context.Context, id uuid.UUID) (*Medication, error) {
	return s.medications.GetByID(ctx, id)
}

func (s *Service) ListMedications(ctx context.Context, limit, offset int) ([]*Medication, int, error) {
	return s.medications.List(ctx, limit, offset)
}

// -- Prescription --

func (s *Service) CreatePrescription(ctx context.Context, p *Prescription) error {
	if p.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if p.MedicationID == uuid.Nil {
		return fmt.Errorf("medication_id is required")
	}
	if p.DoseValue <= 0 {
		return fmt.Errorf("dose_value must be positive")
	}
	if p.DoseUnit == "" {
		return fmt.Errorf("dose_unit is required")
	}
	if p.Route == "" {
		return fmt.Errorf("route is required")
	}
	if p.Frequency == "" {
		p.Frequency = "daily"
	}
	if p.Quantity == 0 {
		p.Quantity = 1
	}
	if p.Quantity < 0 || p.Refills < 0 {
		return fmt.Errorf("quantity and refills must not be negative")
	}
	if p.Status == "" {
		p.Status = StatusActive
	}
	if !validPrescriptionStatuses[p.Status] {
		return fmt.Errorf("invalid status: %s", p.Status)
	}
	if p.Priority == "" {
		p.Priority = "routine"
	}
	if !validPriorities[p.Priority] {
		return fmt.Errorf("invalid priority: %s", p.Priority)
	}
	if p.DateWritten.IsZero() {
		p.DateWritten = s.now()
	}
	if _, err := s.medications.GetByID(ctx, p.MedicationID); err != nil {
		return fmt.Errorf("medication %s: %w", p.MedicationID, err)
	}
	return s.prescriptions.Create(ctx, p)
}

func (s *Service) GetPrescription(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return s.prescriptions.GetByID(ctx, id)
}

func (s *Service) ListPrescriptionsByPatient(ctx context.Context, patientID uuid.UUID) ([]*Prescription, error) {
	return s.prescriptions.ListByPatient(ctx, patientID)
}

func (s *Service) UpdatePrescriptionStatus(ctx context.Context, id uuid.UUID, status string) error {
	if !validPrescriptionStatuses[status] {
		return fmt.Errorf("invalid status: %s", status)
	}
	return s.prescriptions.UpdateStatus(ctx, id, status)
}

// -- Administration --

func (s *Service) ListAdministrations(ctx context.Context, prescriptionID uuid.UUID) ([]*Administration, error) {
	return s.administrations.ListByPrescription(ctx, prescriptionID)
}
