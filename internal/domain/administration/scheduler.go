package administration

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/medsafety/internal/domain/medication"
)

// MaxScheduleDays bounds GenerateSchedule.
const MaxScheduleDays = 31

type ScheduleEntry struct {
	PrescriptionID uuid.UUID `json:"prescription_id"`
	MedicationID   uuid.UUID `json:"medication_id"`
	MedicationName string    `json:"medication_name"`
	Dosage         string    `json:"dosage"`
	Priority       string    `json:"priority"`
	Time           time.Time `json:"time"`
}

type ScheduleHour struct {
	Hour    int             `json:"hour"`
	Entries []ScheduleEntry `json:"entries"`
}

type ScheduleDay struct {
	Date  string         `json:"date"`
	Hours []ScheduleHour `json:"hours"`
}

// Schedule buckets administrations by date, then by hour.
type Schedule struct {
	PatientID uuid.UUID     `json:"patient_id"`
	Days      []ScheduleDay `json:"days"`
}

// DueItem is an order that is due now together with today's slots.
type DueItem struct {
	Prescription   *medication.Prescription `json:"prescription"`
	MedicationName string                   `json:"medication_name"`
	Slots          []time.Time              `json:"slots"`
}

type Scheduler struct {
	rxs    medication.PrescriptionRepository
	meds   medication.MedicationRepository
	admins medication.AdministrationRepository
	now    func() time.Time
}

func NewScheduler(rxs medication.PrescriptionRepository, meds medication.MedicationRepository,
	admins medication.AdministrationRepository) *Scheduler {
	return &Scheduler{rxs: rxs, meds: meds, admins: admins, now: time.Now}
}

func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// IsDue reports whether the order may be given now. It only checks that
// the order is active and unexpired; it does not consult the slot list.
func (s *Scheduler) IsDue(rx *medication.Prescription) bool {
	return rx.IsActive() && !rx.IsExpired(s.now())
}

// duePrescriptions returns the patient's orders that IsDue accepts, in
// repository order.
func (s *Scheduler) duePrescriptions(ctx context.Context, patientID uuid.UUID) ([]*medication.Prescription, error) {
	rxs, err := s.rxs.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list prescriptions: %w", err)
	}
	out := rxs[:0:0]
	for _, rx := range rxs {
		if s.IsDue(rx) {
			out = append(out, rx)
		}
	}
	return out, nil
}

func (s *Scheduler) medicationNames(ctx context.Context, rxs []*medication.Prescription) (map[uuid.UUID]string, error) {
	names := make(map[uuid.UUID]string, len(rxs))
	for _, rx := range rxs {
		if _, ok := names[rx.MedicationID]; ok {
			continue
		}
		m, err := s.meds.GetByID(ctx, rx.MedicationID)
		if err != nil {
			return nil, fmt.Errorf("medication %s: %w", rx.MedicationID, err)
		}
		names[m.ID] = m.Name
	}
	return names, nil
}

// GenerateSchedule lays out the patient's due orders over the next days
// calendar dates, starting today. Slots at or after an order's expiry are
// left out.
func (s *Scheduler) GenerateSchedule(ctx context.Context, patientID uuid.UUID, days int) (*Schedule, error) {
	if days < 1 || days > MaxScheduleDays {
		return nil, fmt.Errorf("days must be between 1 and %d, got %d", MaxScheduleDays, days)
	}
	rxs, err := s.duePrescriptions(ctx, patientID)
	if err != nil {
		return nil, err
	}
	names, err := s.medicationNames(ctx, rxs)
	if err != nil {
		return nil, err
	}

	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	sched := &Schedule{PatientID: patientID, Days: make([]ScheduleDay, 0, days)}
	for d := 0; d < days; d++ {
		date := today.AddDate(0, 0, d)
		byHour := make(map[int][]ScheduleEntry)
		for _, rx := range rxs {
			for _, slot := range FrequencySlots(rx.Frequency, date, rx.DateWritten) {
				if rx.IsExpired(slot) {
					continue
				}
				byHour[slot.Hour()] = append(byHour[slot.Hour()], ScheduleEntry{
					PrescriptionID: rx.ID,
					MedicationID:   rx.MedicationID,
					MedicationName: names[rx.MedicationID],
					Dosage:         rx.DosageText(),
					Priority:       rx.Priority,
					Time:           slot,
				})
			}
		}
		day := ScheduleDay{Date: date.Format("2006-01-02"), Hours: []ScheduleHour{}}
		for h, entries := range byHour {
			day.Hours = append(day.Hours, ScheduleHour{Hour: h, Entries: entries})
		}
		sort.Slice(day.Hours, func(i, j int) bool { return day.Hours[i].Hour < day.Hours[j].Hour })
		sched.Days = append(sched.Days, day)
	}
	return sched, nil
}

// DueNow lists the orders IsDue accepts with their slots for today.
func (s *Scheduler) DueNow(ctx context.Context, patientID uuid.UUID) ([]DueItem, error) {
	rxs, err := s.duePrescriptions(ctx, patientID)
	if err != nil {
		return nil, err
	}
	names, err := s.medicationNames(ctx, rxs)
	if err != nil {
		return nil, err
	}
	now := s.now()
	items := make([]DueItem, 0, len(rxs))
	for _, rx := range rxs {
		items = append(items, DueItem{
			Prescription:   rx,
			MedicationName: names[rx.MedicationID],
			Slots:          FrequencySlots(rx.Frequency, now, rx.DateWritten),
		})
	}
	return items, nil
}

// ShouldComplete reports whether enough completed administrations exist to
// close the order. A single-dose order without refills completes after one;
// otherwise quantity * (refills + 1) completed records are needed.
func (s *Scheduler) ShouldComplete(ctx context.Context, rx *medication.Prescription) (bool, error) {
	records, err := s.admins.ListByPrescription(ctx, rx.ID)
	if err != nil {
		return false, fmt.Errorf("list administrations: %w", err)
	}
	completed := 0
	for _, a := range records {
		if a.Status == medication.AdminCompleted {
			completed++
		}
	}
	if rx.Refills == 0 && rx.Quantity == 1 {
		return completed >= 1, nil
	}
	return completed >= rx.Quantity*(rx.Refills+1), nil
}
