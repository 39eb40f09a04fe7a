package interaction

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindDrugDrug      Kind = "drug-drug"
	KindDrugAllergy   Kind = "drug-allergy"
	KindDrugCondition Kind = "drug-condition"
	KindDrugLab       Kind = "drug-lab"
)

// Result is the outcome of one check. "No interaction" is a Result with
// HasInteraction false, never an error. An overridden interaction keeps
// HasInteraction true; callers must look at both fields.
type Result struct {
	Kind           Kind       `json:"kind"`
	HasInteraction bool       `json:"has_interaction"`
	InteractionID  *uuid.UUID `json:"interaction_id,omitempty"`
	PatientID      *uuid.UUID `json:"patient_id,omitempty"`
	MedicationID   uuid.UUID  `json:"medication_id"`
	MedicationName string     `json:"medication_name"`
	Severity       Severity   `json:"severity,omitempty"`
	Description    string     `json:"description,omitempty"`
	Reference      string     `json:"reference,omitempty"`

	// drug-drug
	OtherMedicationID   *uuid.UUID `json:"other_medication_id,omitempty"`
	OtherMedicationName string     `json:"other_medication_name,omitempty"`

	// drug-allergy
	AllergyID    *uuid.UUID `json:"allergy_id,omitempty"`
	Allergen     string     `json:"allergen,omitempty"`
	AllergyClass string     `json:"allergy_class,omitempty"`
	Reaction     string     `json:"reaction,omitempty"`

	// drug-condition
	ConditionCode string `json:"condition_code,omitempty"`
	ConditionName string `json:"condition_name,omitempty"`

	// drug-lab
	LabResultID    *uuid.UUID `json:"lab_result_id,omitempty"`
	LabCode        string     `json:"lab_code,omitempty"`
	AbnormalFlag   string     `json:"abnormal_flag,omitempty"`
	LabCollectedAt *time.Time `json:"lab_collected_at,omitempty"`

	IsOverridden      bool       `json:"is_overridden"`
	OverrideID        *uuid.UUID `json:"override_id,omitempty"`
	OverrideReason    string     `json:"override_reason,omitempty"`
	OverrideExpiresAt *time.Time `json:"override_expires_at,omitempty"`
	// ExpiredOverrideID is set when only an expired override was on file.
	ExpiredOverrideID *uuid.UUID `json:"expired_override_id,omitempty"`

	AuditDegraded bool `json:"audit_degraded,omitempty"`
}

// Blocking reports whether the result should stop an administration.
func (r *Result) Blocking() bool {
	return r.HasInteraction && !r.IsOverridden && r.Severity.IsSevere()
}

func (r *Result) outcome() string {
	switch {
	case !r.HasInteraction:
		return "none"
	case r.IsOverridden:
		return "overridden"
	}
	return "interaction"
}

// BatchResult consolidates every check for a medication list. Only
// interactions that are present and not overridden are listed. List order
// follows the input order.
type BatchResult struct {
	PatientID             uuid.UUID   `json:"patient_id"`
	MedicationIDs         []uuid.UUID `json:"medication_ids"`
	DrugDrug              []*Result   `json:"drug_drug_interactions"`
	DrugAllergy           []*Result   `json:"drug_allergy_interactions"`
	DrugCondition         []*Result   `json:"drug_condition_interactions"`
	DrugLab               []*Result   `json:"drug_lab_interactions"`
	HasSevereInteractions bool        `json:"has_severe_interactions"`
	InteractionCount      int         `json:"interaction_count"`
	AuditDegraded         bool        `json:"audit_degraded,omitempty"`
}

// All returns the collected results, drug-drug first.
func (b *BatchResult) All() []*Result {
	out := make([]*Result, 0, b.InteractionCount)
	out = append(out, b.DrugDrug...)
	out = append(out, b.DrugAllergy...)
	out = append(out, b.DrugCondition...)
	return append(out, b.DrugLab...)
}
