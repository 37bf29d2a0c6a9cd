package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"registration-service/internal/model"
)

// Field names the record attribute a query is keyed on.
type Field string

const (
	FieldMSISDN    Field = "msisdn"
	FieldSourceIP  Field = "source_ip"
	FieldStatus    Field = "status"
	FieldCreatedAt Field = "created_at"
)

var (
	ErrUnsupportedField = errors.New("unsupported query field")
	ErrInvalidRecord    = errors.New("invalid registration record")
)

// Filter selects records whose Field equals Value and whose creation time is
// strictly after Since. An empty Status matches every status. Limit <= 0
// means no limit.
type Filter struct {
	Field  Field
	Value  string
	Since  time.Time
	Status model.RegistrationStatus
	Limit  int
}

// Matches applies the status part of the filter.
func (f Filter) Matches(r *model.Registration) bool {
	return f.Status == "" || r.Status == f.Status
}

// RegistrationStore persists registration attempts. Query results are ordered
// newest first. Create assigns CreatedAt from the store's clock.
type RegistrationStore interface {
	Create(ctx context.Context, registration *model.Registration) error
	Query(ctx context.Context, filter Filter) ([]*model.Registration, error)
	HealthCheck(ctx context.Context) error
}

// Sealer protects the code at rest.
type Sealer interface {
	Seal(ctx context.Context, plaintext string) (string, error)
	Open(ctx context.Context, sealed string) (string, error)
}

// ValidateForCreate checks the fields every store requires.
func ValidateForCreate(r *model.Registration) error {
	switch {
	case r == nil:
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	case r.ID == "":
		return fmt.Errorf("%w: missing registration_id", ErrInvalidRecord)
	case r.MSISDN == "":
		return fmt.Errorf("%w: missing msisdn", ErrInvalidRecord)
	case r.Code == "":
		return fmt.Errorf("%w: missing code", ErrInvalidRecord)
	case r.Status != model.StatusPending && r.Status != model.StatusIncorrect:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRecord, r.Status)
	}
	return nil
}
