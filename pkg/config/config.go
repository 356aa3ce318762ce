package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Routing      RoutingConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Stripe       StripeConfig
	Pricing      PricingConfig
	Maps         MapsConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SPEEDYVAN_APP_ENV" required:"true"`
	Port         string `envconfig:"SPEEDYVAN_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SPEEDYVAN_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SPEEDYVAN_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SPEEDYVAN_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SPEEDYVAN_DB_DSN"`
	Driver string `envconfig:"SPEEDYVAN_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SPEEDYVAN_DB_HOST"`
	LegacyPort     int    `envconfig:"SPEEDYVAN_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SPEEDYVAN_DB_USER"`
	LegacyPassword string `envconfig:"SPEEDYVAN_DB_PASSWORD"`
	LegacyName     string `envconfig:"SPEEDYVAN_DB_NAME"`
	LegacySSLMode  string `envconfig:"SPEEDYVAN_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SPEEDYVAN_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SPEEDYVAN_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SPEEDYVAN_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SPEEDYVAN_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SPEEDYVAN_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SPEEDYVAN_REDIS_ADDR"`
	Password     string        `envconfig:"SPEEDYVAN_REDIS_PASSWORD"`
	DB           int           `envconfig:"SPEEDYVAN_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SPEEDYVAN_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SPEEDYVAN_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SPEEDYVAN_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SPEEDYVAN_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SPEEDYVAN_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// RoutingConfig holds scheduler-side knobs. Business routing settings
// (mode, drop limits, approval policy) live in the routing_configs table.
type RoutingConfig struct {
	ExpirySweepInterval time.Duration `envconfig:"SPEEDYVAN_ROUTING_EXPIRY_SWEEP_INTERVAL" default:"1m"`
	LookaheadWindow     time.Duration `envconfig:"SPEEDYVAN_ROUTING_LOOKAHEAD_WINDOW" default:"48h"`
	BatchSize           int           `envconfig:"SPEEDYVAN_ROUTING_BATCH_SIZE" default:"100"`
	LockTTL             time.Duration `envconfig:"SPEEDYVAN_ROUTING_LOCK_TTL" default:"10m"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SPEEDYVAN_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SPEEDYVAN_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SPEEDYVAN_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"SPEEDYVAN_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SPEEDYVAN_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DriverTopic        string `envconfig:"SPEEDYVAN_PUBSUB_DRIVER_TOPIC" required:"true"`
	DriverSubscription string `envconfig:"SPEEDYVAN_PUBSUB_DRIVER_SUBSCRIPTION"`
	AdminTopic         string `envconfig:"SPEEDYVAN_PUBSUB_ADMIN_TOPIC" required:"true"`
	AdminSubscription  string `envconfig:"SPEEDYVAN_PUBSUB_ADMIN_SUBSCRIPTION"`
}

type StripeConfig struct {
	APIKey string `envconfig:"SPEEDYVAN_STRIPE_API_KEY"`
	Secret string `envconfig:"SPEEDYVAN_STRIPE_SECRET"`
	Env    string `envconfig:"SPEEDYVAN_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type PricingConfig struct {
	BaseURL string        `envconfig:"SPEEDYVAN_PRICING_BASE_URL"`
	APIKey  string        `envconfig:"SPEEDYVAN_PRICING_API_KEY"`
	Timeout time.Duration `envconfig:"SPEEDYVAN_PRICING_TIMEOUT" default:"10s"`
}

type MapsConfig struct {
	APIKey  string        `envconfig:"SPEEDYVAN_GOOGLE_MAPS_API_KEY"`
	Timeout time.Duration `envconfig:"SPEEDYVAN_GOOGLE_MAPS_TIMEOUT" default:"10s"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SPEEDYVAN_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SPEEDYVAN_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SPEEDYVAN_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
