package administration

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/medsafety/internal/domain/interaction"
	"github.com/ehr/medsafety/internal/domain/medication"
)

var (
	// ErrNotVerified is returned when recording without a verified check.
	ErrNotVerified = errors.New("administration has not been verified")
	// ErrReasonRequired is returned when skipping a dose without a reason.
	ErrReasonRequired = errors.New("a reason is required to skip an administration")
)

type Outcome string

const (
	OutcomeVerified Outcome = "verified"
	OutcomeRejected Outcome = "rejected"
)

// Rejection reasons.
const (
	ReasonInvalidBarcode       = "invalid-barcode"
	ReasonPrescriptionNotFound = "prescription-not-found"
	ReasonMedicationNotFound   = "medication-not-found"
	ReasonRightsFailed         = "rights-failed"
	ReasonSevereInteraction    = "severe-interaction"
)

// DoseTolerance is the allowed relative deviation from the prescribed dose.
const DoseTolerance = 0.10

// doseEpsilon absorbs float error so a dose exactly at the tolerance passes.
const doseEpsilon = 1e-9

// Rights are the five checks made before a dose is given.
type Rights struct {
	Patient    bool `json:"right_patient"`
	Medication bool `json:"right_medication"`
	Dose       bool `json:"right_dose"`
	Route      bool `json:"right_route"`
	Time       bool `json:"right_time"`
}

func (r Rights) AllPassed() bool {
	return r.Patient && r.Medication && r.Dose && r.Route && r.Time
}

// Failed lists the names of the checks that did not pass.
func (r Rights) Failed() []string {
	var out []string
	for _, c := range []struct {
		ok   bool
		name string
	}{
		{r.Patient, "patient"}, {r.Medication, "medication"}, {r.Dose, "dose"},
		{r.Route, "route"}, {r.Time, "time"},
	} {
		if !c.ok {
			out = append(out, c.name)
		}
	}
	return out
}

// VerifyRequest is one scan at the bedside.
type VerifyRequest struct {
	PatientBarcode    string    `json:"patient_barcode"`
	MedicationBarcode string    `json:"medication_barcode"`
	PrescriptionID    uuid.UUID `json:"prescription_id"`
	DoseValue         float64   `json:"dose_value"`
	DoseUnit          string    `json:"dose_unit,omitempty"`
	Route             string    `json:"route"`
}

// Verification is the terminal state of one attempt. Rights is nil when
// the attempt was rejected before the five rights were evaluated.
type Verification struct {
	ID             uuid.UUID  `json:"id"`
	Outcome        Outcome    `json:"outcome"`
	Reason         string     `json:"reason,omitempty"`
	Rights         *Rights    `json:"rights,omitempty"`
	PrescriptionID uuid.UUID  `json:"prescription_id"`
	PatientID      uuid.UUID  `json:"patient_id"`
	MedicationID   uuid.UUID  `json:"medication_id"`
	MedicationName string     `json:"medication_name,omitempty"`
	Lot            string     `json:"lot,omitempty"`
	ScannedExpiry  *time.Time `json:"scanned_expiry,omitempty"`
	DoseValue      float64    `json:"dose_value"`
	DoseUnit       string     `json:"dose_unit,omitempty"`
	Route          string     `json:"route"`
	VerifiedAt     time.Time  `json:"verified_at"`

	Interactions  *interaction.BatchResult `json:"interactions,omitempty"`
	AuditDegraded bool                     `json:"audit_degraded,omitempty"`
}

func (v *Verification) Verified() bool {
	return v != nil && v.Outcome == OutcomeVerified
}

// SafetyBlock returns a *SafetyBlockError when the attempt was stopped by
// an interaction, nil otherwise.
func (v *Verification) SafetyBlock() error {
	if v == nil || v.Reason != ReasonSevereInteraction || v.Interactions == nil {
		return nil
	}
	blocking := make([]*interaction.Result, 0)
	for _, r := range v.Interactions.All() {
		if r.Severity.IsSevere() {
			blocking = append(blocking, r)
		}
	}
	return &SafetyBlockError{PrescriptionID: v.PrescriptionID, PatientID: v.PatientID, Interactions: blocking}
}

// SafetyBlockError carries the severe, non-overridden interactions that
// stopped an administration. Only an explicit override can clear it.
type SafetyBlockError struct {
	PrescriptionID uuid.UUID
	PatientID      uuid.UUID
	Interactions   []*interaction.Result
}

func (e *SafetyBlockError) Error() string {
	return fmt.Sprintf("administration of prescription %s blocked by %d severe interaction(s)",
		e.PrescriptionID, len(e.Interactions))
}

// SkipRequest records a dose deliberately not given.
type SkipRequest struct {
	PrescriptionID uuid.UUID `json:"prescription_id"`
	Reason         string    `json:"reason"`
}

// RecordResult is what a recording call wrote.
type RecordResult struct {
	Administration        *medication.Administration `json:"administration"`
	PrescriptionCompleted bool                       `json:"prescription_completed"`
	AuditDegraded         bool                       `json:"audit_degraded,omitempty"`
}
