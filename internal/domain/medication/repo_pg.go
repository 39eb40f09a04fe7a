package medication

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/medsafety/internal/platform/db"
)

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// =========== Medication Repository ===========

type medicationRepoPG struct{ pool *pgxpool.Pool }

func NewMedicationRepoPG(pool *pgxpool.Pool) MedicationRepository {
	return &medicationRepoPG{pool: pool}
}

const medCols = `id, code, name, form, strength_value, strength_unit,
	is_controlled, is_high_alert, created_at, updated_at`

func scanMedication(row pgx.Row) (*Medication, error) {
	var m Medication
	err := row.Scan(&m.ID, &m.Code, &m.Name, &m.Form, &m.StrengthValue, &m.StrengthUnit,
		&m.IsControlled, &m.IsHighAlert, &m.CreatedAt, &m.UpdatedAt)
	return &m, err
}

func (r *medicationRepoPG) Create(ctx context.Context, m *Medication) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO medication (id, code, name, form, strength_value, strength_unit, is_controlled, is_high_alert)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		m.ID, m.Code, m.Name, m.Form, m.StrengthValue, m.StrengthUnit, m.IsControlled, m.IsHighAlert,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
}

func (r *medicationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Medication, error) {
	m, err := scanMedication(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+medCols+` FROM medication WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

func (r *medicationRepoPG) List(ctx context.Context, limit, offset int) ([]*Medication, int, error) {
	q := db.Conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM medication`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count medications: %w", err)
	}
	rows, err := q.Query(ctx, `SELECT `+medCols+` FROM medication ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Medication
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

// =========== Prescription Repository ===========

type prescriptionRepoPG struct{ pool *pgxpool.Pool }

func NewPrescriptionRepoPG(pool *pgxpool.Pool) PrescriptionRepository {
	return &prescriptionRepoPG{pool: pool}
}

const rxCols = `id, patient_id, medication_id, prescriber_id, dose_value, dose_unit,
	frequency, route, refills, quantity, status, priority, date_written,
	expires_at, note, created_at, updated_at`

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	err := row.Scan(&p.ID, &p.PatientID, &p.MedicationID, &p.PrescriberID, &p.DoseValue, &p.DoseUnit,
		&p.Frequency, &p.Route, &p.Refills, &p.Quantity, &p.Status, &p.Priority, &p.DateWritten,
		&p.ExpiresAt, &p.Note, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO prescription (id, patient_id, medication_id, prescriber_id, dose_value, dose_unit,
			frequency, route, refills, quantity, status, priority, date_written, expires_at, note)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING created_at, updated_at`,
		p.ID, p.PatientID, p.MedicationID, p.PrescriberID, p.DoseValue, p.DoseUnit,
		p.Frequency, p.Route, p.Refills, p.Quantity, p.Status, p.Priority, p.DateWritten, p.ExpiresAt, p.Note,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *prescriptionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	p, err := scanPrescription(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+rxCols+` FROM prescription WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (r *prescriptionRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Prescription, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+rxCols+` FROM prescription WHERE patient_id = $1 ORDER BY date_written, id`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *prescriptionRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE prescription SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// =========== Administration Repository ===========

type administrationRepoPG struct{ pool *pgxpool.Pool }

func NewAdministrationRepoPG(pool *pgxpool.Pool) AdministrationRepository {
	return &administrationRepoPG{pool: pool}
}

const adminCols = `id, patient_id, medication_id, prescription_id, performer_id,
	dose_value, dose_unit, route, status, status_reason, site,
	verification_method, administered_at, created_at`

func (r *administrationRepoPG) Create(ctx context.Context, a *Administration) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO medication_administration (id, patient_id, medication_id, prescription_id, performer_id,
			dose_value, dose_unit, route, status, status_reason, site, verification_method, administered_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING created_at`,
		a.ID, a.PatientID, a.MedicationID, a.PrescriptionID, a.PerformerID,
		a.DoseValue, a.DoseUnit, a.Route, a.Status, a.StatusReason, a.Site, a.VerificationMethod, a.AdministeredAt,
	).Scan(&a.CreatedAt)
}

func (r *administrationRepoPG) ListByPrescription(ctx context.Context, prescriptionID uuid.UUID) ([]*Administration, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+adminCols+` FROM medication_administration WHERE prescription_id = $1 ORDER BY administered_at`, prescriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Administration
	for rows.Next() {
		var a Administration
		if err := rows.Scan(&a.ID, &a.PatientID, &a.MedicationID, &a.PrescriptionID, &a.PerformerID,
			&a.DoseValue, &a.DoseUnit, &a.Route, &a.Status, &a.StatusReason, &a.Site,
			&a.VerificationMethod, &a.AdministeredAt, &a.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &a)
	}
	return items, rows.Err()
}
