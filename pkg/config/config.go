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
	JWT          JWTConfig
	Square       SquareConfig
	Pricing      PricingConfig
	Orders       OrdersConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
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
	Env          string `envconfig:"CASTLEMART_APP_ENV" required:"true"`
	Port         string `envconfig:"CASTLEMART_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CASTLEMART_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CASTLEMART_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "prod")
}

type ServiceConfig struct {
	Kind string `envconfig:"CASTLEMART_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CASTLEMART_DB_DSN"`
	Driver string `envconfig:"CASTLEMART_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CASTLEMART_DB_HOST"`
	LegacyPort     int    `envconfig:"CASTLEMART_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CASTLEMART_DB_USER"`
	LegacyPassword string `envconfig:"CASTLEMART_DB_PASSWORD"`
	LegacyName     string `envconfig:"CASTLEMART_DB_NAME"`
	LegacySSLMode  string `envconfig:"CASTLEMART_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CASTLEMART_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CASTLEMART_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CASTLEMART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CASTLEMART_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CASTLEMART_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CASTLEMART_REDIS_ADDR"`
	Password     string        `envconfig:"CASTLEMART_REDIS_PASSWORD"`
	DB           int           `envconfig:"CASTLEMART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CASTLEMART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CASTLEMART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CASTLEMART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CASTLEMART_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CASTLEMART_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"CASTLEMART_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CASTLEMART_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CASTLEMART_JWT_EXPIRATION_MINUTES" required:"true"`
}

type SquareConfig struct {
	AccessToken   string        `envconfig:"CASTLEMART_SQUARE_ACCESS_TOKEN"`
	Env           string        `envconfig:"CASTLEMART_SQUARE_ENV" default:"sandbox"`
	WebhookSecret string        `envconfig:"CASTLEMART_SQUARE_WEBHOOK_SECRET"`
	Timeout       time.Duration `envconfig:"CASTLEMART_SQUARE_TIMEOUT" default:"10s"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type PricingConfig struct {
	TaxRate               string `envconfig:"CASTLEMART_PRICING_TAX_RATE" default:"0.10"`
	ShippingFlatCents     int64  `envconfig:"CASTLEMART_PRICING_SHIPPING_FLAT_CENTS" default:"799"`
	ShippingFreeOverCents int64  `envconfig:"CASTLEMART_PRICING_SHIPPING_FREE_OVER_CENTS" default:"10000"`
	Currency              string `envconfig:"CASTLEMART_PRICING_CURRENCY" default:"USD"`
}

type OrdersConfig struct {
	PendingTTL      time.Duration `envconfig:"CASTLEMART_ORDERS_PENDING_TTL" default:"24h"`
	ExpiryBatchSize int           `envconfig:"CASTLEMART_ORDERS_EXPIRY_BATCH_SIZE" default:"50"`
}

type CronConfig struct {
	Enabled  bool          `envconfig:"CASTLEMART_CRON_ENABLED" default:"true"`
	Interval time.Duration `envconfig:"CASTLEMART_CRON_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"CASTLEMART_CRON_LOCK_TTL" default:"5m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CASTLEMART_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	ConsumerIdempotencyTTL time.Duration `envconfig:"CASTLEMART_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CASTLEMART_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"CASTLEMART_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CASTLEMART_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"CASTLEMART_PUBSUB_ORDERS_TOPIC"`
	OrdersSubscription string `envconfig:"CASTLEMART_PUBSUB_ORDERS_SUBSCRIPTION"`
	InventoryTopic     string `envconfig:"CASTLEMART_PUBSUB_INVENTORY_TOPIC"`
}

type BigQueryConfig struct {
	Dataset          string `envconfig:"CASTLEMART_BIGQUERY_DATASET" default:"castlemart"`
	OrderEventsTable string `envconfig:"CASTLEMART_BIGQUERY_ORDER_EVENTS_TABLE" default:"order_events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"CASTLEMART_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"CASTLEMART_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"CASTLEMART_OUTBOX_MAX_ATTEMPTS" default:"10"`
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
