package interaction

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/medsafety/internal/platform/db"
)

// PGSource reads the rule tables of the main database. Row order within
// each table follows the position column, which is the store order used
// for tie-breaking.
type PGSource struct {
	pool *pgxpool.Pool
}

func NewPGSource(pool *pgxpool.Pool) *PGSource {
	return &PGSource{pool: pool}
}

func (s *PGSource) Name() string { return "postgres" }

func (s *PGSource) Load(ctx context.Context) (*Document, error) {
	doc := &Document{}
	var err error
	if doc.DrugDrug, err = s.drugDrug(ctx); err != nil {
		return nil, fmt.Errorf("drug_interaction: %w", err)
	}
	if doc.AllergyClasses, err = s.allergyClasses(ctx); err != nil {
		return nil, fmt.Errorf("allergy_class_member: %w", err)
	}
	if doc.ConditionRules, err = s.conditionRules(ctx); err != nil {
		return nil, fmt.Errorf("condition_rule: %w", err)
	}
	if doc.LabRules, err = s.labRules(ctx); err != nil {
		return nil, fmt.Errorf("lab_rule: %w", err)
	}
	return doc, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (s *PGSource) drugDrug(ctx context.Context) ([]DrugDrugRule, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx, `
		SELECT id, medication_a_id, medication_a_name, medication_b_id, medication_b_name,
			severity, description, reference
		FROM drug_interaction ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DrugDrugRule
	for rows.Next() {
		var r DrugDrugRule
		var sev string
		var desc, ref *string
		if err := rows.Scan(&r.ID, &r.MedicationAID, &r.MedicationAName, &r.MedicationBID, &r.MedicationBName,
			&sev, &desc, &ref); err != nil {
			return nil, err
		}
		r.Severity = Severity(strings.ToLower(sev))
		r.Description, r.Reference = deref(desc), deref(ref)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGSource) allergyClasses(ctx context.Context) ([]AllergyClass, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx, `
		SELECT class_name, medication_name FROM allergy_class_member ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AllergyClass
	index := make(map[string]int)
	for rows.Next() {
		var class, member string
		if err := rows.Scan(&class, &member); err != nil {
			return nil, err
		}
		i, ok := index[class]
		if !ok {
			i = len(out)
			index[class] = i
			out = append(out, AllergyClass{Name: class})
		}
		out[i].Members = append(out[i].Members, member)
	}
	return out, rows.Err()
}

func (s *PGSource) conditionRules(ctx context.Context) ([]ConditionRule, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx, `
		SELECT id, medication_name, condition_code, condition_name, severity, description, reference
		FROM condition_rule ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ConditionRule
	for rows.Next() {
		var r ConditionRule
		var sev string
		var name, desc, ref *string
		if err := rows.Scan(&r.ID, &r.MedicationName, &r.ConditionCode, &name, &sev, &desc, &ref); err != nil {
			return nil, err
		}
		r.Severity = Severity(strings.ToLower(sev))
		r.ConditionName, r.Description, r.Reference = deref(name), deref(desc), deref(ref)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGSource) labRules(ctx context.Context) ([]LabRule, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx, `
		SELECT id, medication_name, lab_code, abnormal_flag, severity, description, reference
		FROM lab_rule ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LabRule
	for rows.Next() {
		var r LabRule
		var sev string
		var desc, ref *string
		if err := rows.Scan(&r.ID, &r.MedicationName, &r.LabCode, &r.AbnormalFlag, &sev, &desc, &ref); err != nil {
			return nil, err
		}
		r.Severity = Severity(strings.ToLower(sev))
		r.Description, r.Reference = deref(desc), deref(ref)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SavePG replaces the rule tables with doc inside one transaction. Rules
// are written with their derived ids so overrides stay keyed correctly.
func SavePG(ctx context.Context, pool *pgxpool.Pool, doc *Document) error {
	d := doc.withDerivedIDs()
	if err := d.Validate(); err != nil {
		return err
	}
	return db.WithTx(ctx, pool, func(ctx context.Context) error {
		q := db.Conn(ctx, pool)
		for _, t := range []string{"drug_interaction", "allergy_class_member", "condition_rule", "lab_rule"} {
			if _, err := q.Exec(ctx, "DELETE FROM "+t); err != nil {
				return fmt.Errorf("clear %s: %w", t, err)
			}
		}
		for _, r := range d.DrugDrug {
			if _, err := q.Exec(ctx, `
				INSERT INTO drug_interaction (id, medication_a_id, medication_a_name, medication_b_id, medication_b_name,
					severity, description, reference)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				r.ID, r.MedicationAID, r.MedicationAName, r.MedicationBID, r.MedicationBName,
				string(r.Severity), r.Description, r.Reference); err != nil {
				return fmt.Errorf("insert drug_interaction %s: %w", r.ID, err)
			}
		}
		for _, c := range d.AllergyClasses {
			for _, m := range c.Members {
				if _, err := q.Exec(ctx, `INSERT INTO allergy_class_member (class_name, medication_name) VALUES ($1, $2)`,
					c.Name, m); err != nil {
					return fmt.Errorf("insert allergy_class_member %s/%s: %w", c.Name, m, err)
				}
			}
		}
		for _, r := range d.ConditionRules {
			if _, err := q.Exec(ctx, `
				INSERT INTO condition_rule (id, medication_name, condition_code, condition_name, severity, description, reference)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				r.ID, r.MedicationName, r.ConditionCode, r.ConditionName, string(r.Severity), r.Description, r.Reference); err != nil {
				return fmt.Errorf("insert condition_rule %s: %w", r.ID, err)
			}
		}
		for _, r := range d.LabRules {
			if _, err := q.Exec(ctx, `
				INSERT INTO lab_rule (id, medication_name, lab_code, abnormal_flag, severity, description, reference)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				r.ID, r.MedicationName, r.LabCode, r.AbnormalFlag, string(r.Severity), r.Description, r.Reference); err != nil {
				return fmt.Errorf("insert lab_rule %s: %w", r.ID, err)
			}
		}
		return nil
	})
}
