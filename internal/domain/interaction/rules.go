package interaction

import (
	"strings"

	"github.com/google/uuid"

	"github.com/ehr/medsafety/internal/domain/medication"
)

type Severity string

const (
	SeverityMild            Severity = "mild"
	SeverityModerate        Severity = "moderate"
	SeveritySevere          Severity = "severe"
	SeverityContraindicated Severity = "contraindicated"
)

// Rank orders severities; unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityMild:
		return 1
	case SeverityModerate:
		return 2
	case SeveritySevere:
		return 3
	case SeverityContraindicated:
		return 4
	}
	return 0
}

func (s Severity) Valid() bool { return s.Rank() > 0 }

// IsSevere is true for the tiers that block administration.
func (s Severity) IsSevere() bool { return s.Rank() >= SeveritySevere.Rank() }

// ParseSeverity accepts any casing. Allergy records use free text, so
// anything unrecognised is treated as moderate.
func ParseSeverity(s string) Severity {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if sev.Valid() {
		return sev
	}
	return SeverityModerate
}

// DrugDrugRule is keyed by the unordered medication pair. Each side matches
// by medication id when one is set, otherwise by case-insensitive name.
type DrugDrugRule struct {
	ID              uuid.UUID  `json:"id"`
	MedicationAID   *uuid.UUID `json:"medication_a_id,omitempty"`
	MedicationAName string     `json:"medication_a_name"`
	MedicationBID   *uuid.UUID `json:"medication_b_id,omitempty"`
	MedicationBName string     `json:"medication_b_name"`
	Severity        Severity   `json:"severity"`
	Description     string     `json:"description"`
	Reference       string     `json:"reference,omitempty"`
}

func sideMatches(id *uuid.UUID, name string, m *medication.Medication) bool {
	if id != nil {
		return *id == m.ID
	}
	return strings.EqualFold(name, m.Name)
}

func (r *DrugDrugRule) matches(a, b *medication.Medication) bool {
	return (sideMatches(r.MedicationAID, r.MedicationAName, a) && sideMatches(r.MedicationBID, r.MedicationBName, b)) ||
		(sideMatches(r.MedicationAID, r.MedicationAName, b) && sideMatches(r.MedicationBID, r.MedicationBName, a))
}

// AllergyClass names a drug class an allergy record may refer to.
type AllergyClass struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

func (c *AllergyClass) contains(medName string) bool {
	for _, m := range c.Members {
		if strings.EqualFold(m, medName) {
			return true
		}
	}
	return false
}

type ConditionRule struct {
	ID             uuid.UUID `json:"id"`
	MedicationName string    `json:"medication_name"`
	ConditionCode  string    `json:"condition_code"`
	ConditionName  string    `json:"condition_name,omitempty"`
	Severity       Severity  `json:"severity"`
	Description    string    `json:"description"`
	Reference      string    `json:"reference,omitempty"`
}

type LabRule struct {
	ID             uuid.UUID `json:"id"`
	MedicationName string    `json:"medication_name"`
	LabCode        string    `json:"lab_code"`
	AbnormalFlag   string    `json:"abnormal_flag"`
	Severity       Severity  `json:"severity"`
	Description    string    `json:"description"`
	Reference      string    `json:"reference,omitempty"`
}

// RuleSet is the immutable reference data the checkers consult. It is built
// once and shared by every checker; nothing mutates it after NewRuleSet.
type RuleSet struct {
	drugDrug   []DrugDrugRule
	classes    []AllergyClass
	classIndex map[string]int
	conditions []ConditionRule
	labs       []LabRule
	ids        map[uuid.UUID]struct{}
}

// NewRuleSet validates doc, fills in missing rule ids and indexes it. The
// document is copied; later changes to it do not affect the RuleSet.
func NewRuleSet(doc *Document) (*RuleSet, error) {
	d := doc.withDerivedIDs()
	if err := d.Validate(); err != nil {
		return nil, err
	}
	rs := &RuleSet{
		drugDrug:   d.DrugDrug,
		classes:    d.AllergyClasses,
		classIndex: make(map[string]int, len(d.AllergyClasses)),
		conditions: d.ConditionRules,
		labs:       d.LabRules,
		ids:        make(map[uuid.UUID]struct{}),
	}
	for i, c := range rs.classes {
		key := strings.ToLower(strings.TrimSpace(c.Name))
		if _, dup := rs.classIndex[key]; !dup {
			rs.classIndex[key] = i
		}
	}
	for _, r := range rs.drugDrug {
		rs.ids[r.ID] = struct{}{}
	}
	for _, r := range rs.conditions {
		rs.ids[r.ID] = struct{}{}
	}
	for _, r := range rs.labs {
		rs.ids[r.ID] = struct{}{}
	}
	return rs, nil
}

// DrugDrug returns the rule for the pair with the highest severity. Ties go
// to the earliest rule in store order.
func (rs *RuleSet) DrugDrug(a, b *medication.Medication) (*DrugDrugRule, bool) {
	var best *DrugDrugRule
	for i := range rs.drugDrug {
		r := &rs.drugDrug[i]
		if !r.matches(a, b) {
			continue
		}
		if best == nil || r.Severity.Rank() > best.Severity.Rank() {
			best = r
		}
	}
	return best, best != nil
}

// AllergyClass looks up a class by case-insensitive name.
func (rs *RuleSet) AllergyClass(name string) (*AllergyClass, bool) {
	i, ok := rs.classIndex[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, false
	}
	return &rs.classes[i], true
}

// ClassContains reports whether the named class lists medName.
func (rs *RuleSet) ClassContains(className, medName string) bool {
	c, ok := rs.AllergyClass(className)
	return ok && c.contains(medName)
}

func (rs *RuleSet) ConditionRule(medName, conditionCode string) (*ConditionRule, bool) {
	for i := range rs.conditions {
		r := &rs.conditions[i]
		if strings.EqualFold(r.MedicationName, medName) && r.ConditionCode == conditionCode {
			return r, true
		}
	}
	return nil, false
}

// LabRule matches medication name case-insensitively, the lab code exactly
// and the abnormal flag ignoring case.
func (rs *RuleSet) LabRule(medName, labCode, flag string) (*LabRule, bool) {
	for i := range rs.labs {
		r := &rs.labs[i]
		if strings.EqualFold(r.MedicationName, medName) && r.LabCode == labCode &&
			strings.EqualFold(r.AbnormalFlag, strings.TrimSpace(flag)) {
			return r, true
		}
	}
	return nil, false
}

// HasRule reports whether id names any rule in the set.
func (rs *RuleSet) HasRule(id uuid.UUID) bool {
	_, ok := rs.ids[id]
	return ok
}

// Stats is a summary used by the rules CLI and the health endpoint.
type Stats struct {
	DrugDrug       int `json:"drug_drug"`
	AllergyClasses int `json:"allergy_classes"`
	ConditionRules int `json:"condition_rules"`
	LabRules       int `json:"lab_rules"`
}

func (rs *RuleSet) Stats() Stats {
	return Stats{
		DrugDrug:       len(rs.drugDrug),
		AllergyClasses: len(rs.classes),
		ConditionRules: len(rs.conditions),
		LabRules:       len(rs.labs),
	}
}
