package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"registration-service/internal/config"
	"registration-service/internal/model"
	"registration-service/internal/repository"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type memoryStore struct {
	mu        sync.Mutex
	clock     clock.Clock
	records   []*model.Registration
	createErr error
	queryErr  error
	block     bool
}

func newMemoryStore(clk clock.Clock) *memoryStore {
	return &memoryStore{clock: clk}
}

func (m *memoryStore) Create(ctx context.Context, r *model.Registration) error {
	if m.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if m.createErr != nil {
		return m.createErr
	}
	if err := repository.ValidateForCreate(r); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r.CreatedAt = m.clock.Now().UTC()
	stored := *r
	m.records = append(m.records, &stored)
	return nil
}

func (m *memoryStore) Query(ctx context.Context, f repository.Filter) ([]*model.Registration, error) {
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.Registration
	for _, r := range m.records {
		var v string
		switch f.Field {
		case repository.FieldMSISDN:
			v = r.MSISDN
		case repository.FieldSourceIP:
			v = r.SourceIP
		default:
			return nil, repository.ErrUnsupportedField
		}
		if v != f.Value || !r.CreatedAt.After(f.Since) || !f.Matches(r) {
			continue
		}
		copied := *r
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memoryStore) HealthCheck(context.Context) error { return nil }

// seed inserts a record created age before the clock's now.
func (m *memoryStore) seed(msisdn, ip, code string, status model.RegistrationStatus, age time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, &model.Registration{
		ID:        "seed-" + code + "-" + age.String(),
		MSISDN:    msisdn,
		Code:      code,
		CreatedAt: m.clock.Now().Add(-age).UTC(),
		SourceIP:  ip,
		Status:    status,
	})
}

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *memoryStore) last() *model.Registration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[len(m.records)-1]
}

type publishedMessage struct {
	topic, key string
	payload    []byte
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, topic, key string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, publishedMessage{topic: topic, key: key, payload: payload})
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

type captureEmitter struct {
	mu     sync.Mutex
	events []*model.RegistrationEvent
}

func (c *captureEmitter) Emit(_ context.Context, e *model.RegistrationEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureEmitter) types() []model.RegistrationEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.RegistrationEventType, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.EventType)
	}
	return out
}

func newTestClock() *clock.Mock {
	clk := clock.NewMock()
	clk.Set(testNow)
	return clk
}

func testConfig() config.RegistrationConfig {
	cfg := config.DefaultRegistrationConfig()
	cfg.StoreTimeout = 50 * time.Millisecond
	cfg.PublishTimeout = 50 * time.Millisecond
	return cfg
}

type harness struct {
	clock     *clock.Mock
	store     *memoryStore
	publisher *fakePublisher
	events    *captureEmitter
	service   *RegistrationService
}

func newHarness(mutate ...func(*config.RegistrationConfig)) *harness {
	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	clk := newTestClock()
	h := &harness{
		clock:     clk,
		store:     newMemoryStore(clk),
		publisher: &fakePublisher{},
		events:    &captureEmitter{},
	}
	h.service = NewRegistrationService(h.store, h.publisher, h.events, clk, cfg, nil)
	return h
}
