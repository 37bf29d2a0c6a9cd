package service

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"registration-service/internal/model"
	"registration-service/internal/repository"
)

// WindowCounter answers "how many records matched in the last lookback"
// questions against the store. Every query runs under its own timeout.
type WindowCounter struct {
	store   repository.RegistrationStore
	clock   clock.Clock
	timeout time.Duration
}

func NewWindowCounter(store repository.RegistrationStore, clk clock.Clock, timeout time.Duration) *WindowCounter {
	if clk == nil {
		clk = clock.New()
	}
	return &WindowCounter{store: store, clock: clk, timeout: timeout}
}

// Find returns matching records created after now-lookback, newest first.
func (c *WindowCounter) Find(ctx context.Context, field repository.Field, value string, lookback time.Duration, status model.RegistrationStatus, limit int) ([]*model.Registration, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	records, err := c.store.Query(ctx, repository.Filter{
		Field:  field,
		Value:  value,
		Since:  c.clock.Now().Add(-lookback),
		Status: status,
		Limit:  limit,
	})
	if err != nil {
		return nil, storeError("query "+string(field), err, ErrStoreFailed)
	}
	return records, nil
}

func (c *WindowCounter) Count(ctx context.Context, field repository.Field, value string, lookback time.Duration, status model.RegistrationStatus) (int, error) {
	records, err := c.Find(ctx, field, value, lookback, status, 0)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Latest returns the newest matching record or nil.
func (c *WindowCounter) Latest(ctx context.Context, field repository.Field, value string, lookback time.Duration, status model.RegistrationStatus) (*model.Registration, error) {
	records, err := c.Find(ctx, field, value, lookback, status, 1)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}
