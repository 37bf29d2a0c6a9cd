package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"registration-service/internal/config"
	"registration-service/internal/model"
	"registration-service/internal/repository"
	"registration-service/internal/util"
)

// attemptStatuses are the statuses that count as an unfinished attempt.
var attemptStatuses = []model.RegistrationStatus{model.StatusPending, model.StatusIncorrect}

type AttemptLimit struct {
	Field repository.Field
	Max   int
}

// AbuseGate denies registration when a phone number or source address has
// too many unfinished attempts inside the lookback window.
type AbuseGate struct {
	counter  *WindowCounter
	lookback time.Duration
	limits   []AttemptLimit
	logger   *zap.Logger
}

func NewAbuseGate(counter *WindowCounter, cfg config.RegistrationConfig, logger *zap.Logger) *AbuseGate {
	limits := []AttemptLimit{{Field: repository.FieldMSISDN, Max: cfg.MSISDNAttemptLimit}}
	if cfg.IPLimitEnabled {
		limits = append(limits, AttemptLimit{Field: repository.FieldSourceIP, Max: cfg.IPAttemptLimit})
	}
	return &AbuseGate{
		counter:  counter,
		lookback: cfg.AbuseLookback,
		limits:   limits,
		logger:   logger,
	}
}

// Admit returns ErrTooManyInvalidAttempts naming the first exhausted limit.
func (g *AbuseGate) Admit(ctx context.Context, sourceIP, msisdn string) error {
	values := map[repository.Field]string{
		repository.FieldMSISDN:   msisdn,
		repository.FieldSourceIP: sourceIP,
	}

	counts := make([][]int, len(g.limits))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, limit := range g.limits {
		i, limit := i, limit
		counts[i] = make([]int, len(attemptStatuses))
		value := values[limit.Field]
		if value == "" {
			continue
		}
		for j, status := range attemptStatuses {
			j, status := j, status
			eg.Go(func() error {
				n, err := g.counter.Count(egCtx, limit.Field, value, g.lookback, status)
				counts[i][j] = n
				return err
			})
		}
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	for i, limit := range g.limits {
		total := 0
		for _, n := range counts[i] {
			total += n
		}
		if total >= limit.Max {
			fields := []zap.Field{
				util.String("field", string(limit.Field)),
				util.Int("attempts", total),
				util.Int("limit", limit.Max),
				util.MSISDN(msisdn),
			}
			if limit.Field == repository.FieldSourceIP {
				fields = append(fields, util.SourceIP(sourceIP))
			}
			g.logger.Warn("Registration attempts exhausted", fields...)
			return fmt.Errorf("%w: %s", ErrTooManyInvalidAttempts, limit.Field)
		}
	}
	return nil
}
