package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"registration-service/internal/config"
	"registration-service/internal/repository"
	"registration-service/internal/util"
)

// DeliveryWindow caps the records allowed for one number within Lookback.
type DeliveryWindow struct {
	Lookback time.Duration
	Max      int
}

// DeliveryThrottle decides whether a freshly persisted attempt may trigger
// an SMS. It runs after the write, so the new record is part of each count.
type DeliveryThrottle struct {
	counter *WindowCounter
	windows []DeliveryWindow
	logger  *zap.Logger
}

func NewDeliveryThrottle(counter *WindowCounter, cfg config.RegistrationConfig, logger *zap.Logger) *DeliveryThrottle {
	return &DeliveryThrottle{
		counter: counter,
		windows: []DeliveryWindow{
			{Lookback: time.Minute, Max: cfg.SMSLimitPerMinute},
			{Lookback: time.Hour, Max: cfg.SMSLimitPerHour},
			{Lookback: 24 * time.Hour, Max: cfg.SMSLimitPerDay},
		},
		logger: logger,
	}
}

func (t *DeliveryThrottle) ShouldSend(ctx context.Context, msisdn string) (bool, error) {
	counts := make([]int, len(t.windows))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, w := range t.windows {
		i, w := i, w
		eg.Go(func() error {
			n, err := t.counter.Count(egCtx, repository.FieldMSISDN, msisdn, w.Lookback, "")
			counts[i] = n
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return false, err
	}

	for i, w := range t.windows {
		if counts[i] > w.Max {
			t.logger.Warn("Suppressing SMS resend",
				util.MSISDN(msisdn),
				util.Duration("window", w.Lookback),
				util.Int("records", counts[i]),
				util.Int("limit", w.Max))
			return false, nil
		}
	}
	return true, nil
}
