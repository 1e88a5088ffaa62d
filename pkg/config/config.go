package config

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Events       EventsConfig
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
	if err := cfg.Events.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"AGRIMARKET_APP_ENV" required:"true"`
	Port         string `envconfig:"AGRIMARKET_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"AGRIMARKET_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"AGRIMARKET_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"AGRIMARKET_LOG_WARN_STACK" default:"false"`

	CORSAllowedOrigins []string `envconfig:"AGRIMARKET_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// DBConfig takes either a full DSN or the discrete host/user/name parts,
// which Load assembles into a postgres:// URL.
type DBConfig struct {
	DSN string `envconfig:"AGRIMARKET_DB_DSN"`

	Host     string `envconfig:"AGRIMARKET_DB_HOST"`
	Port     int    `envconfig:"AGRIMARKET_DB_PORT" default:"5432"`
	User     string `envconfig:"AGRIMARKET_DB_USER"`
	Password string `envconfig:"AGRIMARKET_DB_PASSWORD"`
	Name     string `envconfig:"AGRIMARKET_DB_NAME"`
	SSLMode  string `envconfig:"AGRIMARKET_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"AGRIMARKET_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"AGRIMARKET_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"AGRIMARKET_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"AGRIMARKET_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"AGRIMARKET_REDIS_URL" required:"true"`
	Address      string        `envconfig:"AGRIMARKET_REDIS_ADDR"`
	Password     string        `envconfig:"AGRIMARKET_REDIS_PASSWORD"`
	DB           int           `envconfig:"AGRIMARKET_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"AGRIMARKET_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"AGRIMARKET_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"AGRIMARKET_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"AGRIMARKET_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"AGRIMARKET_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies the access tokens issued by the identity service.
type JWTConfig struct {
	Secret            string `envconfig:"AGRIMARKET_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"AGRIMARKET_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"AGRIMARKET_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"AGRIMARKET_AUTO_MIGRATE" default:"false"`
}

// EventsConfig tunes the in-process dispatcher that fans domain events out to sinks.
type EventsConfig struct {
	QueueSize        int           `envconfig:"AGRIMARKET_EVENTS_QUEUE_SIZE" default:"1024"`
	Workers          int           `envconfig:"AGRIMARKET_EVENTS_WORKERS" default:"4"`
	DeliveryTimeout  time.Duration `envconfig:"AGRIMARKET_EVENTS_DELIVERY_TIMEOUT" default:"5s"`
	OutboxEnabled    bool          `envconfig:"AGRIMARKET_EVENTS_OUTBOX_ENABLED" default:"true"`
	RealtimeEnabled  bool          `envconfig:"AGRIMARKET_EVENTS_REALTIME_ENABLED" default:"true"`
	RealtimePrefix   string        `envconfig:"AGRIMARKET_EVENTS_REALTIME_PREFIX" default:"agrimarket:realtime"`
	AnalyticsEnabled bool          `envconfig:"AGRIMARKET_EVENTS_ANALYTICS_ENABLED" default:"false"`
}

func (e EventsConfig) validate() error {
	if e.QueueSize <= 0 {
		return fmt.Errorf("%s must be positive", EnvEventsQueueSize)
	}
	if e.Workers <= 0 {
		return fmt.Errorf("%s must be positive", EnvEventsWorkers)
	}
	return nil
}

type GCPConfig struct {
	ProjectID              string `envconfig:"AGRIMARKET_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"AGRIMARKET_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"AGRIMARKET_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"AGRIMARKET_PUBSUB_ORDERS_TOPIC" default:"agrimarket-order-events"`
}

type BigQueryConfig struct {
	Dataset          string `envconfig:"AGRIMARKET_BIGQUERY_DATASET" default:"agrimarket"`
	OrderEventsTable string `envconfig:"AGRIMARKET_BIGQUERY_ORDER_EVENTS_TABLE" default:"order_events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"AGRIMARKET_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"AGRIMARKET_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"AGRIMARKET_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	var missing []string
	for env, value := range map[string]string{EnvDBHost: db.Host, EnvDBUser: db.User, EnvDBName: db.Name} {
		if value == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("set %s or all of %s", EnvDBDSN, strings.Join(missing, ", "))
	}

	user := url.User(db.User)
	if db.Password != "" {
		user = url.UserPassword(db.User, db.Password)
	}
	dsn := url.URL{
		Scheme: "postgres",
		User:   user,
		Host:   net.JoinHostPort(db.Host, strconv.Itoa(db.Port)),
		Path:   db.Name,
	}
	if db.SSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {db.SSLMode}}.Encode()
	}
	db.DSN = dsn.String()
	return nil
}
