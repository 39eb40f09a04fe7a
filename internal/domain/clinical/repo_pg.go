package clinical

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/medsafety/internal/platform/db"
)

type contextRepoPG struct{ pool *pgxpool.Pool }

func NewContextRepoPG(pool *pgxpool.Pool) ContextRepository {
	return &contextRepoPG{pool: pool}
}

func (r *contextRepoPG) ActiveAllergies(ctx context.Context, patientID uuid.UUID) ([]*Allergy, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, patient_id, allergen, severity, reaction, active, recorded_at
		FROM allergy WHERE patient_id = $1 AND active
		ORDER BY recorded_at, id`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Allergy
	for rows.Next() {
		var a Allergy
		if err := rows.Scan(&a.ID, &a.PatientID, &a.Allergen, &a.Severity, &a.Reaction, &a.Active, &a.RecordedAt); err != nil {
			return nil, err
		}
		items = append(items, &a)
	}
	return items, rows.Err()
}

func (r *contextRepoPG) ActiveConditions(ctx context.Context, patientID uuid.UUID) ([]*Condition, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, patient_id, code, name, active, onset_at
		FROM condition WHERE patient_id = $1 AND active
		ORDER BY onset_at NULLS LAST, id`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Condition
	for rows.Next() {
		var c Condition
		if err := rows.Scan(&c.ID, &c.PatientID, &c.Code, &c.Name, &c.Active, &c.OnsetAt); err != nil {
			return nil, err
		}
		items = append(items, &c)
	}
	return items, rows.Err()
}

func (r *contextRepoPG) RecentAbnormalLabs(ctx context.Context, patientID uuid.UUID, since time.Time) ([]*LabResult, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, patient_id, code, name, value, unit, COALESCE(abnormal_flag, ''), collected_at
		FROM lab_result
		WHERE patient_id = $1 AND collected_at >= $2
		  AND abnormal_flag IS NOT NULL AND UPPER(TRIM(abnormal_flag)) NOT IN ('', 'N')
		ORDER BY collected_at DESC, id`, patientID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*LabResult
	for rows.Next() {
		var l LabResult
		if err := rows.Scan(&l.ID, &l.PatientID, &l.Code, &l.Name, &l.Value, &l.Unit, &l.AbnormalFlag, &l.CollectedAt); err != nil {
			return nil, err
		}
		items = append(items, &l)
	}
	return items, rows.Err()
}
