package administration

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/medsafety/internal/domain/interaction"
	"github.com/ehr/medsafety/internal/domain/medication"
	"github.com/ehr/medsafety/internal/platform/audit"
)

type fakeMedRepo struct {
	items map[uuid.UUID]*medication.Medication
}

func (r *fakeMedRepo) Create(_ context.Context, m *medication.Medication) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	r.items[m.ID] = m
	return nil
}

func (r *fakeMedRepo) GetByID(_ context.Context, id uuid.UUID) (*medication.Medication, error) {
	m, ok := r.items[id]
	if !ok {
		return nil, medication.ErrNotFound
	}
	return m, nil
}

func (r *fakeMedRepo) List(context.Context, int, int) ([]*medication.Medication, int, error) {
	return nil, 0, nil
}

type fakeRxRepo struct {
	mu    sync.Mutex
	items []*medication.Prescription
	err   error
}

func (r *fakeRxRepo) Create(_ context.Context, p *medication.Prescription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, p)
	return nil
}

func (r *fakeRxRepo) GetByID(_ context.Context, id uuid.UUID) (*medication.Prescription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	for _, p := range r.items {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, medication.ErrNotFound
}

func (r *fakeRxRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*medication.Prescription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*medication.Prescription
	for _, p := range r.items {
		if p.PatientID == patientID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakeRxRepo) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.items {
		if p.ID == id {
			p.Status = status
			return nil
		}
	}
	return medication.ErrNotFound
}

type fakeAdminRepo struct {
	mu    sync.Mutex
	items []*medication.Administration
	err   error
}

func (r *fakeAdminRepo) Create(_ context.Context, a *medication.Administration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.items = append(r.items, a)
	return nil
}

func (r *fakeAdminRepo) ListByPrescription(_ context.Context, id uuid.UUID) ([]*medication.Administration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*medication.Administration
	for _, a := range r.items {
		if a.PrescriptionID == id {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeBatch struct {
	calls  [][]uuid.UUID
	result *interaction.BatchResult
	err    error
}

func (b *fakeBatch) BatchCheck(_ context.Context, ids []uuid.UUID, pid uuid.UUID) (*interaction.BatchResult, error) {
	b.calls = append(b.calls, ids)
	if b.err != nil {
		return nil, b.err
	}
	if b.result != nil {
		return b.result, nil
	}
	return &interaction.BatchResult{PatientID: pid, MedicationIDs: ids}, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
}

func (s *recordingSink) Write(_ context.Context, e audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

var errDB = errors.New("connection reset")

var testNow = time.Date(2025, 4, 2, 10, 30, 0, 0, time.UTC)
