package audit

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"registration-service/internal/bucketing"
	"registration-service/internal/model"
	"registration-service/internal/util"
)

const maxInFlight = 256

// Emitter fans events out to recorders in the background. Events are
// dropped, never queued without bound, when sinks fall behind.
type Emitter struct {
	recorders []Recorder
	buckets   *bucketing.BucketingManager
	clock     clock.Clock
	timeout   time.Duration

	slots chan struct{}

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewEmitter(recorders []Recorder, buckets *bucketing.BucketingManager, clk clock.Clock, timeout time.Duration) *Emitter {
	if clk == nil {
		clk = clock.New()
	}
	return &Emitter{
		recorders: recorders,
		buckets:   buckets,
		clock:     clk,
		timeout:   timeout,
		slots:     make(chan struct{}, maxInFlight),
	}
}

func (e *Emitter) Emit(ctx context.Context, event *model.RegistrationEvent) {
	if len(e.recorders) == 0 {
		return
	}

	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.EventTime.IsZero() {
		event.EventTime = e.clock.Now().UTC()
	}
	if e.buckets != nil {
		assignment := e.buckets.Assign(event.MSISDN, event.EventTime)
		event.EventBucket = assignment.EventBucket
		event.EventDate = assignment.DateBucket
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		util.Warn("Dropping registration event, emitter closed",
			zap.String("event_type", string(event.EventType)))
		return
	}
	select {
	case e.slots <- struct{}{}:
	default:
		e.mu.Unlock()
		util.Warn("Dropping registration event, recorders saturated",
			zap.String("event_type", string(event.EventType)))
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		defer func() { <-e.slots }()

		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
		defer cancel()

		for _, r := range e.recorders {
			if err := r.Record(recordCtx, event); err != nil {
				util.Warn("Failed to record registration event",
					zap.String("recorder", r.Name()),
					zap.String("event_type", string(event.EventType)),
					zap.Error(err))
			}
		}
	}()
}

// Close rejects further events and waits for in-flight ones.
func (e *Emitter) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.wg.Wait()
}
