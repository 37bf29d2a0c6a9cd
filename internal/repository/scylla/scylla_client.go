package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"registration-service/internal/config"
	"registration-service/internal/util"
)

// Statements holds the CQL used by the registration repository. gocql
// prepares and caches them per session on first use.
type Statements struct {
	InsertByMSISDN   string
	InsertBySourceIP string
	InsertByID       string
	SelectByMSISDN   string
	SelectBySourceIP string
}

var registrationColumns = `registration_id, msisdn, code, created_at, source_ip, status, sms_sent`

func newStatements() *Statements {
	return &Statements{
		InsertByMSISDN: `
        INSERT INTO registrations_by_msisdn (` + registrationColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		InsertBySourceIP: `
        INSERT INTO registrations_by_source_ip (` + registrationColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		InsertByID: `
        INSERT INTO registrations (` + registrationColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		SelectByMSISDN: `
        SELECT ` + registrationColumns + `
        FROM registrations_by_msisdn WHERE msisdn = ? AND created_at > ?`,
		SelectBySourceIP: `
        SELECT ` + registrationColumns + `
        FROM registrations_by_source_ip WHERE source_ip = ? AND created_at > ?`,
	}
}

// Schema creates the registration tables. Partitions are clustered newest first.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS registrations_by_msisdn (
        msisdn text,
        created_at timestamp,
        registration_id text,
        code text,
        source_ip text,
        status text,
        sms_sent boolean,
        PRIMARY KEY ((msisdn), created_at, registration_id)
    ) WITH CLUSTERING ORDER BY (created_at DESC, registration_id ASC)`,
	`CREATE TABLE IF NOT EXISTS registrations_by_source_ip (
        source_ip text,
        created_at timestamp,
        registration_id text,
        msisdn text,
        code text,
        status text,
        sms_sent boolean,
        PRIMARY KEY ((source_ip), created_at, registration_id)
    ) WITH CLUSTERING ORDER BY (created_at DESC, registration_id ASC)`,
	`CREATE TABLE IF NOT EXISTS registrations (
        registration_id text PRIMARY KEY,
        msisdn text,
        code text,
        created_at timestamp,
        source_ip text,
        status text,
        sms_sent boolean
    )`,
}

type ScyllaClient struct {
	Session    *gocql.Session
	Statements *Statements
}

func NewScyllaClient(cfg *config.Config) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.MaxPreparedStmts = 1000
	cluster.MaxRoutingKeyInfo = 1000
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        100 * time.Millisecond,
		Max:        time.Second,
		NumRetries: 2,
	}

	if scyllaConfig.EnableTLS {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 scyllaConfig.CAPath,
			CertPath:               scyllaConfig.CertPath,
			KeyPath:                scyllaConfig.KeyPath,
			EnableHostVerification: true,
		}
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	util.Info("ScyllaDB client initialized",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return &ScyllaClient{
		Session:    session,
		Statements: newStatements(),
	}, nil
}

// EnsureSchema creates the registration tables when they are missing.
func (s *ScyllaClient) EnsureSchema(ctx context.Context) error {
	for _, stmt := range Schema {
		if err := s.Session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	util.Info("ScyllaDB registration schema ensured")
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(ctx context.Context, stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...).WithContext(ctx)
}

func (s *ScyllaClient) Batch(ctx context.Context, typ gocql.BatchType) *gocql.Batch {
	return s.Session.NewBatch(typ).WithContext(ctx)
}

func (s *ScyllaClient) HealthCheck(ctx context.Context) error {
	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}

// ExecuteBatchWithRetry retries a batch with linear backoff until maxRetries
// or ctx expires. Only idempotent batches may be passed.
func (s *ScyllaClient) ExecuteBatchWithRetry(ctx context.Context, batch *gocql.Batch, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if lastErr = s.Session.ExecuteBatch(batch); lastErr == nil {
			return nil
		}
		if i == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * 100 * time.Millisecond):
		}
	}
	return lastErr
}
