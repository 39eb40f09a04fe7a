package override

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/medsafety/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const cols = `id, interaction_id, patient_id, provider_id, reason, created_at, expires_at`

func scanOverride(row pgx.Row) (*Override, error) {
	var o Override
	if err := row.Scan(&o.ID, &o.InteractionID, &o.PatientID, &o.ProviderID, &o.Reason, &o.CreatedAt, &o.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (r *repoPG) Create(ctx context.Context, o *Override) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO interaction_override (`+cols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.ID, o.InteractionID, o.PatientID, o.ProviderID, o.Reason, o.CreatedAt, o.ExpiresAt)
	return err
}

func (r *repoPG) FindActive(ctx context.Context, interactionID, patientID uuid.UUID, now time.Time) (*Override, error) {
	return scanOverride(db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+cols+` FROM interaction_override
		WHERE interaction_id = $1 AND patient_id = $2 AND expires_at > $3
		ORDER BY created_at DESC LIMIT 1`, interactionID, patientID, now))
}

func (r *repoPG) FindLatest(ctx context.Context, interactionID, patientID uuid.UUID) (*Override, error) {
	return scanOverride(db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+cols+` FROM interaction_override
		WHERE interaction_id = $1 AND patient_id = $2
		ORDER BY expires_at DESC LIMIT 1`, interactionID, patientID))
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Override, int, error) {
	q := db.Conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM interaction_override WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `
		SELECT `+cols+` FROM interaction_override
		WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Override
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, o)
	}
	return items, total, rows.Err()
}
