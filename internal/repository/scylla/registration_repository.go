package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"registration-service/internal/model"
	"registration-service/internal/repository"
	"registration-service/internal/util"
)

// RegistrationRepository writes each attempt to one table per query key in a
// logged batch, so the msisdn and source ip views never diverge.
type RegistrationRepository struct {
	client *ScyllaClient
	sealer repository.Sealer
	clock  clock.Clock
}

func NewRegistrationRepository(client *ScyllaClient, sealer repository.Sealer, clk clock.Clock) *RegistrationRepository {
	if clk == nil {
		clk = clock.New()
	}
	return &RegistrationRepository{client: client, sealer: sealer, clock: clk}
}

func (r *RegistrationRepository) Create(ctx context.Context, reg *model.Registration) error {
	if err := repository.ValidateForCreate(reg); err != nil {
		return err
	}

	values, err := r.rowValues(ctx, reg)
	if err != nil {
		return err
	}

	batch := r.client.Batch(ctx, gocql.LoggedBatch)
	batch.Query(r.client.Statements.InsertByID, values...)
	batch.Query(r.client.Statements.InsertByMSISDN, values...)
	if reg.SourceIP != "" {
		batch.Query(r.client.Statements.InsertBySourceIP, values...)
	}

	if err := r.client.ExecuteBatchWithRetry(ctx, batch, 2); err != nil {
		util.Error("Failed to create registration",
			util.RegistrationID(reg.ID),
			zap.Error(err))
		return fmt.Errorf("failed to create registration: %w", err)
	}

	util.Debug("Registration stored",
		util.RegistrationID(reg.ID),
		zap.Time("created_at", reg.CreatedAt))

	return nil
}

// rowValues stamps CreatedAt and returns the column values in
// registrationColumns order with the code sealed.
func (r *RegistrationRepository) rowValues(ctx context.Context, reg *model.Registration) ([]interface{}, error) {
	code := reg.Code
	if r.sealer != nil {
		sealed, err := r.sealer.Seal(ctx, reg.Code)
		if err != nil {
			return nil, fmt.Errorf("failed to seal code: %w", err)
		}
		code = sealed
	}

	// CQL timestamps carry millisecond precision.
	reg.CreatedAt = r.clock.Now().UTC().Truncate(time.Millisecond)

	return []interface{}{reg.ID, reg.MSISDN, code, reg.CreatedAt, reg.SourceIP, string(reg.Status), reg.SMSSent}, nil
}

func (r *RegistrationRepository) Query(ctx context.Context, f repository.Filter) ([]*model.Registration, error) {
	var stmt string
	switch f.Field {
	case repository.FieldMSISDN:
		stmt = r.client.Statements.SelectByMSISDN
	case repository.FieldSourceIP:
		stmt = r.client.Statements.SelectBySourceIP
	default:
		return nil, fmt.Errorf("%w: %s", repository.ErrUnsupportedField, f.Field)
	}

	query := r.client.Query(ctx, stmt, f.Value, f.Since.UTC())
	if n := pageSize(f); n > 0 {
		query = query.PageSize(n)
	}

	out, err := r.collect(ctx, query.Iter(), f)
	if err != nil {
		util.Error("Failed to query registrations",
			zap.String("field", string(f.Field)),
			zap.Error(err))
		return nil, err
	}
	return out, nil
}

// pageSize narrows the first page to Limit when every row counts toward it.
// A status filter is applied client side, so those queries keep the driver
// default.
func pageSize(f repository.Filter) int {
	if f.Limit > 0 && f.Status == "" {
		return f.Limit
	}
	return 0
}

// rowScanner is the part of *gocql.Iter that collect reads from.
type rowScanner interface {
	Scan(dest ...interface{}) bool
	Close() error
}

// collect drains rows newest first, keeps those matching the status filter
// and stops once f.Limit matches are found.
func (r *RegistrationRepository) collect(ctx context.Context, iter rowScanner, f repository.Filter) ([]*model.Registration, error) {
	var out []*model.Registration
	for {
		reg := &model.Registration{}
		var status string
		if !iter.Scan(&reg.ID, &reg.MSISDN, &reg.Code, &reg.CreatedAt, &reg.SourceIP, &status, &reg.SMSSent) {
			break
		}
		reg.Status = model.RegistrationStatus(status)
		reg.CreatedAt = reg.CreatedAt.UTC()
		if !f.Matches(reg) {
			continue
		}
		out = append(out, reg)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to query registrations: %w", err)
	}

	if r.sealer != nil {
		for _, reg := range out {
			code, err := r.sealer.Open(ctx, reg.Code)
			if err != nil {
				return nil, fmt.Errorf("failed to open code: %w", err)
			}
			reg.Code = code
		}
	}

	return out, nil
}

func (r *RegistrationRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck(ctx)
}
