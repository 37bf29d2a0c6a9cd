package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

const (
	StoreBackendScylla = "scylla"
	StoreBackendRedis  = "redis"
)

type Config struct {
	Environment   string
	Server        ServerConfig
	Logging       LoggingConfig
	Store         StoreConfig
	Redis         RedisConfig
	Scylla        ScyllaConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Clickhouse    ClickhouseConfig
	KMS           KMSConfig
	Bucketing     BucketingConfig
	Registration  RegistrationConfig
	Twilio        TwilioConfig
}

type ServerConfig struct {
	Port         int
	TLSPort      int
	EnableTLS    bool
	AutoCert     bool
	Domain       string
	CertFile     string
	KeyFile      string
	AutoCertDir  string
	Email        string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CORSOrigins  []string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type StoreConfig struct {
	Backend     string
	AutoMigrate bool
}

type RedisConfig struct {
	URL         string
	Password    string
	DB          int
	PoolSize    int
	TLSCAFile   string
	TLSCertFile string
	TLSKeyFile  string
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string

	EnableTLS bool
	CAPath    string
	CertPath  string
	KeyPath   string
}

type KafkaConfig struct {
	Brokers       []string
	EnableTLS     bool
	ConsumerGroup string
}

type ElasticsearchConfig struct {
	Enabled  bool
	URL      string
	Username string
	Password string
	Index    string
}

type ClickhouseConfig struct {
	Enabled  bool
	URL      string
	Username string
	Password string
	Database string
	CAFile   string
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

type BucketingConfig struct {
	EventBuckets int
}

// RegistrationConfig carries the limits and timeouts of the registration
// engine.
type RegistrationConfig struct {
	MSISDNAttemptLimit int
	IPAttemptLimit     int
	IPLimitEnabled     bool
	AbuseLookback      time.Duration

	CodeLength      int
	CodeReuseWindow time.Duration

	SMSLimitPerMinute int
	SMSLimitPerHour   int
	SMSLimitPerDay    int
	SMSTopic          string

	StoreTimeout   time.Duration
	PublishTimeout time.Duration
	AuditTimeout   time.Duration

	RequestLimitPerMinute int

	// CodeDisclosure returns the code in the HTTP response when the caller
	// opts out of SMS. Never true in production.
	CodeDisclosure bool
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

var (
	current *Config
	mu      sync.RWMutex
)

// DefaultRegistrationConfig returns the registration limits used when no
// override is present in the environment.
func DefaultRegistrationConfig() RegistrationConfig {
	return RegistrationConfig{
		MSISDNAttemptLimit:    4,
		IPAttemptLimit:        10,
		IPLimitEnabled:        true,
		AbuseLookback:         time.Hour,
		CodeLength:            6,
		CodeReuseWindow:       10 * time.Minute,
		SMSLimitPerMinute:     1,
		SMSLimitPerHour:       2,
		SMSLimitPerDay:        5,
		SMSTopic:              "send-register-sms",
		StoreTimeout:          3 * time.Second,
		PublishTimeout:        5 * time.Second,
		AuditTimeout:          5 * time.Second,
		RequestLimitPerMinute: 30,
	}
}

// LoadConfig reads an optional .env file, then the process environment.
func LoadConfig() *Config {
	_ = godotenv.Load()

	env := normalizeEnvironment(getEnv("STAGE", getEnv("ENVIRONMENT", "")))
	defaults := DefaultRegistrationConfig()

	cfg := &Config{
		Environment: env,
		Server: ServerConfig{
			Port:         getEnvInt("PORT", 8080),
			TLSPort:      getEnvInt("TLS_PORT", 8443),
			EnableTLS:    getEnvBool("ENABLE_TLS", false),
			AutoCert:     getEnvBool("AUTO_CERT", false),
			Domain:       getEnv("DOMAIN", "localhost"),
			CertFile:     getEnv("TLS_CERT_FILE", ""),
			KeyFile:      getEnv("TLS_KEY_FILE", ""),
			AutoCertDir:  getEnv("AUTO_CERT_DIR", "./certs"),
			Email:        getEnv("AUTO_CERT_EMAIL", ""),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			CORSOrigins:  getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"https://*"}),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Store: StoreConfig{
			Backend:     getEnv("STORE_BACKEND", StoreBackendScylla),
			AutoMigrate: getEnvBool("STORE_AUTO_MIGRATE", env != EnvProduction),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379/0"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),

			TLSCAFile:   getEnv("REDIS_TLS_CA_FILE", "/app/certs/ca.crt"),
			TLSCertFile: getEnv("REDIS_TLS_CERT_FILE", "/app/certs/redis.crt"),
			TLSKeyFile:  getEnv("REDIS_TLS_KEY_FILE", "/app/certs/redis.key"),
		},
		Scylla: ScyllaConfig{
			Nodes:    getEnvSlice("SCYLLA_NODES", []string{"localhost:9042"}),
			Keyspace: getEnv("SCYLLA_KEYSPACE", "registration"),
			Username: getEnv("SCYLLA_USERNAME", ""),
			Password: getEnv("SCYLLA_PASSWORD", ""),

			EnableTLS: getEnvBool("SCYLLA_TLS", env != EnvDevelopment),
			CAPath:    getEnv("SCYLLA_TLS_CA_FILE", "/root/certs/ca.pem"),
			CertPath:  getEnv("SCYLLA_TLS_CERT_FILE", "/root/certs/server.pem"),
			KeyPath:   getEnv("SCYLLA_TLS_KEY_FILE", "/root/certs/server.key"),
		},
		Kafka: KafkaConfig{
			Brokers:       getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			EnableTLS:     getEnvBool("KAFKA_TLS", env == EnvProduction),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "sms-dispatcher"),
		},
		Elasticsearch: ElasticsearchConfig{
			Enabled:  getEnvBool("ELASTICSEARCH_ENABLED", false),
			URL:      getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
			Username: getEnv("ELASTICSEARCH_USERNAME", ""),
			Password: getEnv("ELASTICSEARCH_PASSWORD", ""),
			Index:    getEnv("ELASTICSEARCH_INDEX", "registration-events"),
		},
		Clickhouse: ClickhouseConfig{
			Enabled:  getEnvBool("CLICKHOUSE_ENABLED", false),
			URL:      getEnv("CLICKHOUSE_URL", "http://localhost:9000"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			Database: getEnv("CLICKHOUSE_DATABASE", "registration"),
			CAFile:   getEnv("CLICKHOUSE_CA_FILE", ""),
		},
		KMS: KMSConfig{
			Enabled: getEnvBool("KMS_ENABLED", false),
			KeyID:   getEnv("KMS_KEY_ID", ""),
			Region:  getEnv("AWS_REGION", "eu-central-1"),
		},
		Bucketing: BucketingConfig{
			EventBuckets: getEnvInt("EVENT_BUCKETS", 64),
		},
		Registration: RegistrationConfig{
			MSISDNAttemptLimit:    getEnvInt("REGISTRATION_MSISDN_LIMIT", defaults.MSISDNAttemptLimit),
			IPAttemptLimit:        getEnvInt("REGISTRATION_IP_LIMIT", defaults.IPAttemptLimit),
			IPLimitEnabled:        getEnvBool("REGISTRATION_IP_LIMIT_ENABLED", defaults.IPLimitEnabled),
			AbuseLookback:         getEnvDuration("REGISTRATION_ABUSE_LOOKBACK", defaults.AbuseLookback),
			CodeLength:            defaults.CodeLength,
			CodeReuseWindow:       getEnvDuration("REGISTRATION_CODE_REUSE_WINDOW", defaults.CodeReuseWindow),
			SMSLimitPerMinute:     getEnvInt("SEND_SMS_LIMIT_PER_MINUTE", defaults.SMSLimitPerMinute),
			SMSLimitPerHour:       getEnvInt("SEND_SMS_LIMIT_PER_HOUR", defaults.SMSLimitPerHour),
			SMSLimitPerDay:        getEnvInt("SEND_SMS_LIMIT_PER_24_HOURS", defaults.SMSLimitPerDay),
			SMSTopic:              getEnv("KAFKA_SEND_REGISTER_SMS_TOPIC", defaults.SMSTopic),
			StoreTimeout:          getEnvDuration("STORE_TIMEOUT", defaults.StoreTimeout),
			PublishTimeout:        getEnvDuration("PUBLISH_TIMEOUT", defaults.PublishTimeout),
			AuditTimeout:          getEnvDuration("AUDIT_TIMEOUT", defaults.AuditTimeout),
			RequestLimitPerMinute: getEnvInt("REQUEST_LIMIT_PER_MINUTE", defaults.RequestLimitPerMinute),
			CodeDisclosure:        env == EnvDevelopment && getEnvBool("DEV_CODE_DISCLOSURE", false),
		},
		Twilio: TwilioConfig{
			AccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
			FromNumber: getEnv("TWILIO_FROM_NUMBER", ""),
		},
	}

	cfg.EnforceInvariants()

	mu.Lock()
	current = cfg
	mu.Unlock()

	return cfg
}

// Get returns the most recently loaded configuration.
func Get() *Config {
	mu.RLock()
	cfg := current
	mu.RUnlock()
	if cfg == nil {
		return LoadConfig()
	}
	return cfg
}

// EnforceInvariants applies rules no environment variable may override.
func (c *Config) EnforceInvariants() {
	if c.IsProduction() {
		c.Registration.CodeDisclosure = false
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// normalizeEnvironment maps STAGE/ENVIRONMENT onto a known environment.
// Missing or unrecognized values are treated as production.
func normalizeEnvironment(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "development", "dev", "local":
		return EnvDevelopment
	case "staging", "stage":
		return EnvStaging
	default:
		return EnvProduction
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
