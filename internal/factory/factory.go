package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/benbjohnson/clock"

	"registration-service/internal/audit"
	"registration-service/internal/bucketing"
	"registration-service/internal/client"
	"registration-service/internal/config"
	"registration-service/internal/encryption"
	"registration-service/internal/repository"
	redisrepo "registration-service/internal/repository/redis"
	"registration-service/internal/repository/scylla"
	"registration-service/internal/service"
	"registration-service/internal/tls"
	"registration-service/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	clock      clock.Clock
	tlsManager *tls.TLSManager

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Managers
	encryptionManager *encryption.EncryptionManager
	bucketingManager  *bucketing.BucketingManager
	emitter           *audit.Emitter

	store          repository.RegistrationStore
	rateLimitCache *redisrepo.RateLimitCache
	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		clock:  clock.New(),
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		factory.tlsManager = tls.NewTLSManager(cfg)
	}

	if err := factory.initializeClients(); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	if err := factory.initializeManagers(); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}

	if err := factory.initializeStore(); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to initialize registration store: %w", err)
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.String("store_backend", cfg.Store.Backend),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
		util.Bool("code_disclosure", cfg.Registration.CodeDisclosure),
	)

	return factory, nil
}

// initializeClients initializes all external service clients with health checks
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error
	// Only the store backend is required to start.
	var storeErr error

	// Redis
	if rc, err := client.NewRedisClient(f.config); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
		if f.config.Store.Backend == config.StoreBackendRedis {
			storeErr = err
		}
	} else {
		f.redisClient = rc
		util.Info("Redis client initialized and healthy")
	}

	// ScyllaDB
	if f.config.Store.Backend == config.StoreBackendScylla {
		if sc, err := scylla.NewScyllaClient(f.config); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
			storeErr = err
		} else {
			f.scyllaClient = sc
			if err := sc.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
			} else {
				util.Info("ScyllaDB client initialized and healthy")
			}
		}
	}

	// Kafka
	f.kafkaProducer = client.NewKafkaProducer(f.config)
	if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
		util.Warn("Kafka not reachable yet, SMS publishing will retry per request", util.ErrorField(err))
	}

	// Elasticsearch
	if f.config.Elasticsearch.Enabled {
		if es, err := client.NewElasticsearchClient(f.config); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
		} else {
			f.esClient = es
			if err := es.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("elasticsearch health check: %w", err))
			} else {
				util.Info("Elasticsearch client initialized and healthy")
			}
		}
	}

	// ClickHouse
	if f.config.Clickhouse.Enabled {
		if ch, err := client.NewClickHouseClient(f.config); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
		} else {
			f.clickhouseClient = ch
			if err := ch.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("clickhouse health check: %w", err))
			} else {
				util.Info("ClickHouse client initialized and healthy")
			}
		}
	}

	if storeErr != nil {
		return fmt.Errorf("%s store unavailable: %w", f.config.Store.Backend, storeErr)
	}
	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeManagers initializes encryption, bucketing and audit
func (f *Factory) initializeManagers() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var kmsClient encryption.KMSAPI
	if f.config.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			return fmt.Errorf("failed to load AWS config: %w", err)
		}
		kmsClient = kms.NewFromConfig(awsCfg)
	} else if f.config.IsProduction() {
		util.Warn("KMS disabled in production, registration codes are sealed with local keys")
	}

	f.encryptionManager = encryption.NewEncryptionManager(f.config.KMS, kmsClient, f.clock)
	f.bucketingManager = bucketing.NewBucketingManager(f.config.Bucketing)

	var recorders []audit.Recorder
	if f.clickhouseClient != nil {
		recorder := audit.NewClickHouseRecorder(f.clickhouseClient)
		if f.config.Store.AutoMigrate {
			if err := recorder.EnsureSchema(ctx); err != nil {
				util.Warn("ClickHouse audit schema not applied", util.ErrorField(err))
			}
		}
		recorders = append(recorders, recorder)
	}
	if f.esClient != nil {
		recorders = append(recorders, audit.NewElasticsearchRecorder(f.esClient, f.config.Elasticsearch.Index))
	}
	f.emitter = audit.NewEmitter(recorders, f.bucketingManager, f.clock, f.config.Registration.AuditTimeout)

	if f.redisClient != nil {
		f.rateLimitCache = redisrepo.NewRateLimitCache(f.redisClient, f.clock)
	}

	util.Info("Managers initialized successfully",
		util.Bool("kms_client", kmsClient != nil),
		util.Int("audit_recorders", len(recorders)),
		util.Bool("request_limiter", f.rateLimitCache != nil),
	)
	return nil
}

func (f *Factory) initializeStore() error {
	sealer := encryption.NewCodeSealer(f.encryptionManager)

	switch f.config.Store.Backend {
	case config.StoreBackendRedis:
		f.store = redisrepo.NewRegistrationStore(f.redisClient, sealer, f.clock)
	case config.StoreBackendScylla:
		if f.config.Store.AutoMigrate {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := f.scyllaClient.EnsureSchema(ctx); err != nil {
				return err
			}
		}
		f.store = scylla.NewRegistrationRepository(f.scyllaClient, sealer, f.clock)
	default:
		return fmt.Errorf("unknown store backend %q", f.config.Store.Backend)
	}
	return nil
}

// ==============================
// Service Factory
// ==============================
func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		f.serviceFactory = service.NewServiceFactory(
			f.store,
			f.kafkaProducer,
			f.emitter,
			f.clock,
			f.config.Registration,
			util.Component("registration"),
		)
	}
	return f.serviceFactory
}

// ==============================
// Health Checks
// ==============================

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.store != nil {
		healthErrors["store"] = f.store.HealthCheck(ctx)
	} else {
		healthErrors["store"] = fmt.Errorf("registration store not initialized")
	}

	if f.redisClient != nil {
		healthErrors["redis"] = f.redisClient.HealthCheck(ctx)
	}
	if f.kafkaProducer != nil {
		healthErrors["kafka"] = f.kafkaProducer.HealthCheck(ctx)
	}
	if f.esClient != nil {
		healthErrors["elasticsearch"] = f.esClient.HealthCheck(ctx)
	}
	if f.clickhouseClient != nil {
		healthErrors["clickhouse"] = f.clickhouseClient.HealthCheck(ctx)
	}

	return healthErrors
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		// Drain pending audit writes before their clients go away.
		if f.emitter != nil {
			f.emitter.Close()
			util.Info("Audit emitter drained")
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}

		util.Info("Factory shutdown completed")
		util.Sync()
	})

	return nil
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

// RateLimitCache is nil when Redis is unavailable; the request limiter then
// stays off.
func (f *Factory) RateLimitCache() *redisrepo.RateLimitCache {
	return f.rateLimitCache
}
