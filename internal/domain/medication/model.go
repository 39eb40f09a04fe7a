package medication

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by repositories when a medication, prescription or
// administration record does not exist.
var ErrNotFound = errors.New("not found")

// Prescription statuses.
const (
	StatusDraft          = "draft"
	StatusActive         = "active"
	StatusOnHold         = "on-hold"
	StatusCancelled      = "cancelled"
	StatusCompleted      = "completed"
	StatusEnteredInError = "entered-in-error"
	StatusStopped        = "stopped"
	StatusUnknown        = "unknown"
)

// Administration statuses.
const (
	AdminInProgress     = "in-progress"
	AdminNotDone        = "not-done"
	AdminOnHold         = "on-hold"
	AdminCompleted      = "completed"
	AdminEnteredInError = "entered-in-error"
	AdminStopped        = "stopped"
	AdminUnknown        = "unknown"
)

// Verification methods recorded on an administration.
const (
	VerifiedByBarcode  = "barcode"
	VerifiedManually   = "manual"
	VerifiedByOverride = "override-forced"
)

var validPrescriptionStatuses = map[string]bool{
	StatusDraft: true, StatusActive: true, StatusOnHold: true, StatusCancelled: true,
	StatusCompleted: true, StatusEnteredInError: true, StatusStopped: true, StatusUnknown: true,
}

var validAdminStatuses = map[string]bool{
	AdminInProgress: true, AdminNotDone: true, AdminOnHold: true, AdminCompleted: true,
	AdminEnteredInError: true, AdminStopped: true, AdminUnknown: true,
}

var validPriorities = map[string]bool{
	"routine": true, "urgent": true, "asap": true, "stat": true,
}

// ValidPrescriptionStatus reports whether s is a known prescription status.
func ValidPrescriptionStatus(s string) bool { return validPrescriptionStatuses[s] }

// ValidAdministrationStatus reports whether s is a known administration status.
func ValidAdministrationStatus(s string) bool { return validAdminStatuses[s] }

// Medication maps to the medication table.
type Medication struct {
	ID            uuid.UUID `db:"id" json:"id"`
	Code          *string   `db:"code" json:"code,omitempty"`
	Name          string    `db:"name" json:"name"`
	Form          *string   `db:"form" json:"form,omitempty"`
	StrengthValue *float64  `db:"strength_value" json:"strength_value,omitempty"`
	StrengthUnit  *string   `db:"strength_unit" json:"strength_unit,omitempty"`
	IsControlled  bool      `db:"is_controlled" json:"is_controlled"`
	IsHighAlert   bool      `db:"is_high_alert" json:"is_high_alert"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Prescription maps to the prescription table. It is an order for one
// medication for one patient.
type Prescription struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	PatientID    uuid.UUID  `db:"patient_id" json:"patient_id"`
	MedicationID uuid.UUID  `db:"medication_id" json:"medication_id"`
	PrescriberID *string    `db:"prescriber_id" json:"prescriber_id,omitempty"`
	DoseValue    float64    `db:"dose_value" json:"dose_value"`
	DoseUnit     string     `db:"dose_unit" json:"dose_unit"`
	Frequency    string     `db:"frequency" json:"frequency"`
	Route        string     `db:"route" json:"route"`
	Refills      int        `db:"refills" json:"refills"`
	Quantity     int        `db:"quantity" json:"quantity"`
	Status       string     `db:"status" json:"status"`
	Priority     string     `db:"priority" json:"priority"`
	DateWritten  time.Time  `db:"date_written" json:"date_written"`
	ExpiresAt    *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	Note         *string    `db:"note" json:"note,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

func (p *Prescription) IsActive() bool {
	return p.Status == StatusActive
}

// IsExpired reports whether the prescription's validity ended at or before now.
// A prescription without an expiry never expires.
func (p *Prescription) IsExpired(now time.Time) bool {
	return p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}

// DosageText renders the dosage as "500 mg PO twice daily".
func (p *Prescription) DosageText() string {
	parts := []string{strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", p.DoseValue), "0"), ".")}
	for _, s := range []string{p.DoseUnit, p.Route, p.Frequency} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// Administration maps to the medication_administration table. Rows are
// written once and never updated.
type Administration struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	PatientID          uuid.UUID `db:"patient_id" json:"patient_id"`
	MedicationID       uuid.UUID `db:"medication_id" json:"medication_id"`
	PrescriptionID     uuid.UUID `db:"prescription_id" json:"prescription_id"`
	PerformerID        string    `db:"performer_id" json:"performer_id"`
	DoseValue          *float64  `db:"dose_value" json:"dose_value,omitempty"`
	DoseUnit           *string   `db:"dose_unit" json:"dose_unit,omitempty"`
	Route              *string   `db:"route" json:"route,omitempty"`
	Status             string    `db:"status" json:"status"`
	StatusReason       *string   `db:"status_reason" json:"status_reason,omitempty"`
	Site               *string   `db:"site" json:"site,omitempty"`
	VerificationMethod string    `db:"verification_method" json:"verification_method"`
	AdministeredAt     time.Time `db:"administered_at" json:"administered_at"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}
