package audit

import (
	"context"
	"fmt"

	"registration-service/internal/model"
)

// Recorder persists registration events to one sink.
type Recorder interface {
	Name() string
	Record(ctx context.Context, event *model.RegistrationEvent) error
}

type execer interface {
	Exec(ctx context.Context, query string, args ...interface{}) error
}

type indexer interface {
	IndexDocument(ctx context.Context, index, id string, document interface{}) error
}

const clickhouseSchema = `
CREATE TABLE IF NOT EXISTS registration_events (
    event_id String,
    event_bucket UInt16,
    event_date Date,
    event_time DateTime64(3, 'UTC'),
    event_type LowCardinality(String),
    registration_id String,
    msisdn String,
    source_ip String,
    lang LowCardinality(String),
    code_reused Bool,
    details String
) ENGINE = MergeTree
PARTITION BY toYYYYMM(event_date)
ORDER BY (event_bucket, event_time)`

const insertEventQuery = `
INSERT INTO registration_events (
    event_id, event_bucket, event_date, event_time, event_type,
    registration_id, msisdn, source_ip, lang, code_reused, details
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// ClickHouseRecorder appends events to the registration_events table.
type ClickHouseRecorder struct {
	client execer
}

func NewClickHouseRecorder(client execer) *ClickHouseRecorder {
	return &ClickHouseRecorder{client: client}
}

func (r *ClickHouseRecorder) Name() string { return "clickhouse" }

func (r *ClickHouseRecorder) EnsureSchema(ctx context.Context) error {
	if err := r.client.Exec(ctx, clickhouseSchema); err != nil {
		return fmt.Errorf("failed to create registration_events: %w", err)
	}
	return nil
}

func (r *ClickHouseRecorder) Record(ctx context.Context, e *model.RegistrationEvent) error {
	return r.client.Exec(ctx, insertEventQuery,
		e.EventID,
		uint16(e.EventBucket),
		e.EventTime,
		e.EventTime,
		string(e.EventType),
		e.RegistrationID,
		e.MSISDN,
		e.SourceIP,
		e.Lang,
		e.CodeReused,
		e.Details,
	)
}

// ElasticsearchRecorder indexes events by event id.
type ElasticsearchRecorder struct {
	client indexer
	index  string
}

func NewElasticsearchRecorder(client indexer, index string) *ElasticsearchRecorder {
	return &ElasticsearchRecorder{client: client, index: index}
}

func (r *ElasticsearchRecorder) Name() string { return "elasticsearch" }

func (r *ElasticsearchRecorder) Record(ctx context.Context, e *model.RegistrationEvent) error {
	return r.client.IndexDocument(ctx, r.index, e.EventID, e)
}
