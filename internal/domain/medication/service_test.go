package medication

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
)

// -- Mock Repositories --

type mockMedRepo struct {
	meds map[uuid.UUID]*Medication
}

func newMockMedRepo() *mockMedRepo {
	return &mockMedRepo{meds: make(map[uuid.UUID]*Medication)}
}

func (m *mockMedRepo) Create(_ context.Context, med *Medication) error {
	if med.ID == uuid.Nil {
		med.ID = uuid.New()
	}
	med.CreatedAt = time.Now()
	med.UpdatedAt = med.CreatedAt
	m.meds[med.ID] = med
	return nil
}

func (m *mockMedRepo) GetByID(_ context.Context, id uuid.UUID) (*Medication, error) {
	med, ok := m.meds[id]
	if !ok {
		return nil, ErrNotFound
	}
	return med, nil
}

func (m *mockMedRepo) List(_ context.Context, limit, offset int) ([]*Medication, int, error) {
	var out []*Medication
	for _, med := range m.meds {
		out = append(out, med)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

type mockRxRepo struct {
	rxs map[uuid.UUID]*Prescription
}

func newMockRxRepo() *mockRxRepo {
	return &mockRxRepo{rxs: make(map[uuid.UUID]*Prescription)}
}

func (m *mockRxRepo) Create(_ context.Context, p *Prescription) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	m.rxs[p.ID] = p
	return nil
}

func (m *mockRxRepo) GetByID(_ context.Context, id uuid.UUID) (*Prescription, error) {
	p, ok := m.rxs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockRxRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Prescription, error) {
	var out []*Prescription
	for _, p := range m.rxs {
		if p.PatientID == patientID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockRxRepo) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	p, ok := m.rxs[id]
	if !ok {
		return ErrNotFound
	}
	p.Status = status
	return nil
}

type mockAdminRepo struct {
	admins []*Administration
}

func (m *mockAdminRepo) Create(_ context.Context, a *Administration) error {
	a.ID = uuid.New()
	m.admins = append(m.admins, a)
	return nil
}

func (m *mockAdminRepo) ListByPrescription(_ context.Context, id uuid.UUID) ([]*Administration, error) {
	var out []*Administration
	for _, a := range m.admins {
		if a.PrescriptionID == id {
			out = append(out, a)
		}
	}
	return out, nil
}

func newTestService() *Service {
	return NewService(newMockMedRepo(), newMockRxRepo(), &mockAdminRepo{})
}

func createTestMedication(t *testing.T, svc *Service, name string) *Medication {
	t.Helper()
	m := &Medication{Name: name}
	if err := svc.CreateMedication(context.Background(), m); err != nil {
		t.Fatalf("create medication: %v", err)
	}
	return m
}

// -- Tests --

func TestCreateMedication_RequiresName(t *testing.T) {
	svc := newTestService()
	if err := svc.CreateMedication(context.Background(), &Medication{}); err == nil {
		t.Error("expected error for missing name")
	}
}

func TestCreatePrescription_Defaults(t *testing.T) {
	svc := newTestService()
	med := createTestMedication(t, svc, "Warfarin")
	p := &Prescription{
		PatientID:    uuid.New(),
		MedicationID: med.ID,
		DoseValue:    5,
		DoseUnit:     "mg",
		Route:        "PO",
	}
	if err := svc.CreatePrescription(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Status != StatusActive {
		t.Errorf("expected status active, got %s", p.Status)
	}
	if p.Frequency != "daily" {
		t.Errorf("expected default frequency daily, got %s", p.Frequency)
	}
	if p.Quantity != 1 {
		t.Errorf("expected default quantity 1, got %d", p.Quantity)
	}
	if p.Priority != "routine" {
		t.Errorf("expected routine priority, got %s", p.Priority)
	}
	if p.DateWritten.IsZero() {
		t.Error("expected date_written to be set")
	}
}

func TestCreatePrescription_Validation(t *testing.T) {
	svc := newTestService()
	med := createTestMedication(t, svc, "Warfarin")
	base := func() *Prescription {
		return &Prescription{PatientID: uuid.New(), MedicationID: med.ID, DoseValue: 5, DoseUnit: "mg", Route: "PO"}
	}

	tests := []struct {
		name   string
		mutate func(p *Prescription)
	}{
		{"missing patient", func(p *Prescription) { p.PatientID = uuid.Nil }},
		{"missing medication", func(p *Prescription) { p.MedicationID = uuid.Nil }},
		{"zero dose", func(p *Prescription) { p.DoseValue = 0 }},
		{"missing unit", func(p *Prescription) { p.DoseUnit = "" }},
		{"missing route", func(p *Prescription) { p.Route = "" }},
		{"negative refills", func(p *Prescription) { p.Refills = -1 }},
		{"bad status", func(p *Prescription) { p.Status = "bogus" }},
		{"bad priority", func(p *Prescription) { p.Priority = "whenever" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base()
			tt.mutate(p)
			if err := svc.CreatePrescription(context.Background(), p); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestCreatePrescription_UnknownMedication(t *testing.T) {
	svc := newTestService()
	p := &Prescription{PatientID: uuid.New(), MedicationID: uuid.New(), DoseValue: 5, DoseUnit: "mg", Route: "PO"}
	err := svc.CreatePrescription(context.Background(), p)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdatePrescriptionStatus(t *testing.T) {
	svc := newTestService()
	med := createTestMedication(t, svc, "Warfarin")
	p := &Prescription{PatientID: uuid.New(), MedicationID: med.ID, DoseValue: 5, DoseUnit: "mg", Route: "PO"}
	if err := svc.CreatePrescription(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	if err := svc.UpdatePrescriptionStatus(context.Background(), p.ID, "bogus"); err == nil {
		t.Error("expected error for invalid status")
	}
	if err := svc.UpdatePrescriptionStatus(context.Background(), p.ID, StatusOnHold); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := svc.GetPrescription(context.Background(), p.ID)
	if got.Status != StatusOnHold {
		t.Errorf("expected on-hold, got %s", got.Status)
	}
}

func TestPrescription_IsExpired(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &Prescription{}
	if p.IsExpired(now) {
		t.Error("prescription without expiry must not expire")
	}
	exp := now
	p.ExpiresAt = &exp
	if !p.IsExpired(now) {
		t.Error("expected expiry at the boundary instant")
	}
	later := now.Add(time.Minute)
	p.ExpiresAt = &later
	if p.IsExpired(now) {
		t.Error("expected prescription to still be valid")
	}
}

func TestPrescription_DosageText(t *testing.T) {
	tests := []struct {
		p    Prescription
		want string
	}{
		{Prescription{DoseValue: 500, DoseUnit: "mg", Route: "PO", Frequency: "twice daily"}, "500 mg PO twice daily"},
		{Prescription{DoseValue: 0.5, DoseUnit: "mg", Route: "IV"}, "0.5 mg IV"},
		{Prescription{DoseValue: 1.25, DoseUnit: "mL"}, "1.25 mL"},
	}
	for _, tt := range tests {
		if got := tt.p.DosageText(); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
	}
}
