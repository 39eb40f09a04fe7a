package interaction

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// ruleNamespace seeds deterministic ids for rules loaded without one, so a
// rule keeps its id (and any override keyed to it) across reloads.
var ruleNamespace = uuid.MustParse("5b0f7d1e-4c3a-5e8b-9a61-2f4d8c7b3e10")

// Document is the serialised form of a RuleSet, shared by every source.
type Document struct {
	DrugDrug       []DrugDrugRule  `json:"drug_drug"`
	AllergyClasses []AllergyClass  `json:"allergy_classes"`
	ConditionRules []ConditionRule `json:"condition_rules"`
	LabRules       []LabRule       `json:"lab_rules"`
}

// DecodeDocument reads a JSON rule document. Unknown fields are ignored.
func DecodeDocument(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode rule document: %w", err)
	}
	return &doc, nil
}

func deriveID(parts ...string) uuid.UUID {
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return uuid.NewSHA1(ruleNamespace, []byte(strings.Join(parts, "|")))
}

func idOrName(id *uuid.UUID, name string) string {
	if id != nil {
		return id.String()
	}
	return name
}

// withDerivedIDs returns a deep copy of d with every zero rule id replaced
// by a name-derived one.
func (d *Document) withDerivedIDs() *Document {
	out := &Document{
		DrugDrug:       append([]DrugDrugRule(nil), d.DrugDrug...),
		AllergyClasses: make([]AllergyClass, len(d.AllergyClasses)),
		ConditionRules: append([]ConditionRule(nil), d.ConditionRules...),
		LabRules:       append([]LabRule(nil), d.LabRules...),
	}
	for i, c := range d.AllergyClasses {
		out.AllergyClasses[i] = AllergyClass{Name: c.Name, Members: append([]string(nil), c.Members...)}
	}
	for i := range out.DrugDrug {
		r := &out.DrugDrug[i]
		if r.ID == uuid.Nil {
			a, b := idOrName(r.MedicationAID, r.MedicationAName), idOrName(r.MedicationBID, r.MedicationBName)
			if strings.ToLower(a) > strings.ToLower(b) {
				a, b = b, a
			}
			r.ID = deriveID("drug-drug", a, b, string(r.Severity), r.Description)
		}
	}
	for i := range out.ConditionRules {
		r := &out.ConditionRules[i]
		if r.ID == uuid.Nil {
			r.ID = deriveID("drug-condition", r.MedicationName, r.ConditionCode, string(r.Severity))
		}
	}
	for i := range out.LabRules {
		r := &out.LabRules[i]
		if r.ID == uuid.Nil {
			r.ID = deriveID("drug-lab", r.MedicationName, r.LabCode, r.AbnormalFlag, string(r.Severity))
		}
	}
	return out
}

// Validate reports every problem in the document at once. Rules without an
// id are accepted; call it on a document after ids are derived to also
// catch collisions between derived ids.
func (d *Document) Validate() error {
	var errs []error
	bad := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf(format, args...))
	}
	seen := make(map[uuid.UUID]string)
	checkID := func(id uuid.UUID, where string) {
		if id == uuid.Nil {
			return
		}
		if prev, dup := seen[id]; dup {
			bad("%s: duplicate id %s (also used by %s)", where, id, prev)
			return
		}
		seen[id] = where
	}

	for i, r := range d.DrugDrug {
		where := fmt.Sprintf("drug_drug[%d]", i)
		if r.MedicationAID == nil && strings.TrimSpace(r.MedicationAName) == "" {
			bad("%s: medication_a_name is required", where)
		}
		if r.MedicationBID == nil && strings.TrimSpace(r.MedicationBName) == "" {
			bad("%s: medication_b_name is required", where)
		}
		if !r.Severity.Valid() {
			bad("%s: unknown severity %q", where, r.Severity)
		}
		checkID(r.ID, where)
	}
	classes := make(map[string]bool)
	for i, c := range d.AllergyClasses {
		where := fmt.Sprintf("allergy_classes[%d]", i)
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" {
			bad("%s: name is required", where)
		} else if classes[name] {
			bad("%s: duplicate class %q", where, c.Name)
		}
		classes[name] = true
		if len(c.Members) == 0 {
			bad("%s: at least one member is required", where)
		}
		for j, m := range c.Members {
			if strings.TrimSpace(m) == "" {
				bad("%s.members[%d]: empty medication name", where, j)
			}
		}
	}
	for i, r := range d.ConditionRules {
		where := fmt.Sprintf("condition_rules[%d]", i)
		if strings.TrimSpace(r.MedicationName) == "" {
			bad("%s: medication_name is required", where)
		}
		if strings.TrimSpace(r.ConditionCode) == "" {
			bad("%s: condition_code is required", where)
		}
		validateTiered(r.Severity, where, bad)
		checkID(r.ID, where)
	}
	for i, r := range d.LabRules {
		where := fmt.Sprintf("lab_rules[%d]", i)
		if strings.TrimSpace(r.MedicationName) == "" {
			bad("%s: medication_name is required", where)
		}
		if strings.TrimSpace(r.LabCode) == "" {
			bad("%s: lab_code is required", where)
		}
		if strings.TrimSpace(r.AbnormalFlag) == "" {
			bad("%s: abnormal_flag is required", where)
		}
		validateTiered(r.Severity, where, bad)
		checkID(r.ID, where)
	}
	return errors.Join(errs...)
}

// Condition and lab rules stop at severe.
func validateTiered(s Severity, where string, bad func(string, ...interface{})) {
	switch {
	case s == SeverityContraindicated:
		bad("%s: contraindicated is reserved for drug-drug and drug-allergy", where)
	case !s.Valid():
		bad("%s: unknown severity %q", where, s)
	}
}
