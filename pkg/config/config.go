package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix scopes every environment variable consumed by the service.
	EnvPrefix = "courierdesk"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Marketplace  MarketplaceConfig
	Presence     PresenceConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"COURIERDESK_APP_ENV" required:"true"`
	Port         string `envconfig:"COURIERDESK_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"COURIERDESK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"COURIERDESK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"COURIERDESK_DB_DSN" required:"true"`

	MaxOpenConns    int           `envconfig:"COURIERDESK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"COURIERDESK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"COURIERDESK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"COURIERDESK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"COURIERDESK_REDIS_URL"`
	Address      string        `envconfig:"COURIERDESK_REDIS_ADDR"`
	Password     string        `envconfig:"COURIERDESK_REDIS_PASSWORD"`
	DB           int           `envconfig:"COURIERDESK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"COURIERDESK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"COURIERDESK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"COURIERDESK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"COURIERDESK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"COURIERDESK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"COURIERDESK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"COURIERDESK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"COURIERDESK_JWT_EXPIRATION_MINUTES" default:"60"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"COURIERDESK_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"COURIERDESK_PUBSUB_DOMAIN_TOPIC" default:"courierdesk-domain-events"`
	DomainSubscription string `envconfig:"COURIERDESK_PUBSUB_DOMAIN_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"COURIERDESK_OUTBOX_BATCH_SIZE" default:"50"`
	PollInterval   time.Duration `envconfig:"COURIERDESK_OUTBOX_POLL_INTERVAL" default:"500ms"`
	MaxAttempts    int           `envconfig:"COURIERDESK_OUTBOX_MAX_ATTEMPTS" default:"10"`
	PublishTimeout time.Duration `envconfig:"COURIERDESK_OUTBOX_PUBLISH_TIMEOUT" default:"15s"`
}

type MarketplaceConfig struct {
	ListingTTL         time.Duration `envconfig:"COURIERDESK_MARKETPLACE_LISTING_TTL" default:"10m"`
	DefaultMaxCapacity int           `envconfig:"COURIERDESK_MARKETPLACE_DEFAULT_MAX_CAPACITY" default:"3"`
}

type PresenceConfig struct {
	HeartbeatTTL time.Duration `envconfig:"COURIERDESK_PRESENCE_HEARTBEAT_TTL" default:"90s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"COURIERDESK_FEATURE_AUTO_MIGRATE" default:"false"`
}
