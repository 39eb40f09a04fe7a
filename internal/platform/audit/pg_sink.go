package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/medsafety/internal/platform/db"
)

// PGSink inserts events into the audit_event table. When the caller's context
// carries a transaction the insert joins it.
type PGSink struct {
	pool *pgxpool.Pool
}

func NewPGSink(pool *pgxpool.Pool) *PGSink {
	return &PGSink{pool: pool}
}

func (s *PGSink) Write(ctx context.Context, e Event) error {
	detail, err := json.Marshal(e.Detail)
	if err != nil {
		return fmt.Errorf("marshal audit detail: %w", err)
	}
	_, err = db.Conn(ctx, s.pool).Exec(ctx, `
		INSERT INTO audit_event (id, event_type, resource_type, resource_id, severity, actor_id, detail, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.Type, e.ResourceType, e.ResourceID, string(e.Severity), e.ActorID, detail, e.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}
