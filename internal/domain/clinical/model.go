package clinical

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Allergy maps to the allergy table.
type Allergy struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PatientID  uuid.UUID `db:"patient_id" json:"patient_id"`
	Allergen   string    `db:"allergen" json:"allergen"`
	Severity   string    `db:"severity" json:"severity"`
	Reaction   *string   `db:"reaction" json:"reaction,omitempty"`
	Active     bool      `db:"active" json:"active"`
	RecordedAt time.Time `db:"recorded_at" json:"recorded_at"`
}

// Condition maps to the condition table.
type Condition struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	PatientID uuid.UUID  `db:"patient_id" json:"patient_id"`
	Code      string     `db:"code" json:"code"`
	Name      string     `db:"name" json:"name"`
	Active    bool       `db:"active" json:"active"`
	OnsetAt   *time.Time `db:"onset_at" json:"onset_at,omitempty"`
}

// LabResult maps to the lab_result table.
type LabResult struct {
	ID           uuid.UUID `db:"id" json:"id"`
	PatientID    uuid.UUID `db:"patient_id" json:"patient_id"`
	Code         string    `db:"code" json:"code"`
	Name         *string   `db:"name" json:"name,omitempty"`
	Value        *string   `db:"value" json:"value,omitempty"`
	Unit         *string   `db:"unit" json:"unit,omitempty"`
	AbnormalFlag string    `db:"abnormal_flag" json:"abnormal_flag"`
	CollectedAt  time.Time `db:"collected_at" json:"collected_at"`
}

// IsAbnormal reports whether the result carries an abnormal interpretation
// flag (H, L, HH, LL, A, ...). N and empty mean normal.
func (l *LabResult) IsAbnormal() bool {
	f := strings.ToUpper(strings.TrimSpace(l.AbnormalFlag))
	return f != "" && f != "N"
}

// Snapshot is the clinical context evaluated for one patient.
type Snapshot struct {
	PatientID  uuid.UUID    `json:"patient_id"`
	Allergies  []*Allergy   `json:"allergies"`
	Conditions []*Condition `json:"conditions"`
	Labs       []*LabResult `json:"recent_abnormal_labs"`
	Since      time.Time    `json:"labs_since"`
}
