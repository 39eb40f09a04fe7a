package override

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("override not found")

// Override maps to the interaction_override table. Rows are never updated;
// a new override supersedes an old one.
type Override struct {
	ID            uuid.UUID `db:"id" json:"id"`
	InteractionID uuid.UUID `db:"interaction_id" json:"interaction_id"`
	PatientID     uuid.UUID `db:"patient_id" json:"patient_id"`
	ProviderID    string    `db:"provider_id" json:"provider_id"`
	Reason        string    `db:"reason" json:"reason"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	ExpiresAt     time.Time `db:"expires_at" json:"expires_at"`

	AuditDegraded bool `db:"-" json:"audit_degraded,omitempty"`
}

// ActiveAt reports whether the override applies at now. It stops applying
// at the instant now reaches ExpiresAt.
func (o *Override) ActiveAt(now time.Time) bool {
	return now.Before(o.ExpiresAt)
}

// ValidationError reports a missing or invalid override field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type LookupStatus string

const (
	LookupNone    LookupStatus = "none"
	LookupActive  LookupStatus = "active"
	LookupExpired LookupStatus = "expired"
)

// Lookup distinguishes "no override on file" from "only expired overrides
// on file". Override is the active one, or the latest expired one.
type Lookup struct {
	Status   LookupStatus
	Override *Override
}
