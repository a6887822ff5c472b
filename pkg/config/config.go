package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "PAGOSUR_DB_DSN"
	EnvDBHost = "PAGOSUR_DB_HOST"
	EnvDBUser = "PAGOSUR_DB_USER"
	EnvDBName = "PAGOSUR_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Gateways  GatewaysConfig
	Reconcile ReconcileConfig
	Replay    ReplayConfig
	GCP       GCPConfig
	PubSub    PubSubConfig
	Outbox    OutboxConfig
	Flags     FeatureFlagsConfig
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
	Env          string `envconfig:"PAGOSUR_APP_ENV" required:"true"`
	Port         string `envconfig:"PAGOSUR_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PAGOSUR_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PAGOSUR_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"PAGOSUR_DB_DSN"`
	Driver string `envconfig:"PAGOSUR_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PAGOSUR_DB_HOST"`
	LegacyPort     int    `envconfig:"PAGOSUR_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PAGOSUR_DB_USER"`
	LegacyPassword string `envconfig:"PAGOSUR_DB_PASSWORD"`
	LegacyName     string `envconfig:"PAGOSUR_DB_NAME"`
	LegacySSLMode  string `envconfig:"PAGOSUR_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PAGOSUR_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PAGOSUR_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PAGOSUR_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PAGOSUR_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PAGOSUR_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PAGOSUR_REDIS_ADDR"`
	Password     string        `envconfig:"PAGOSUR_REDIS_PASSWORD"`
	DB           int           `envconfig:"PAGOSUR_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PAGOSUR_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PAGOSUR_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PAGOSUR_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PAGOSUR_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PAGOSUR_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// GatewaysConfig holds the pre-shared webhook secrets. Secrets are required so a
// verifier that cannot verify fails at startup instead of falling open.
type GatewaysConfig struct {
	CardnetSecret    string        `envconfig:"PAGOSUR_CARDNET_WEBHOOK_SECRET" required:"true"`
	PaytecSecret     string        `envconfig:"PAGOSUR_PAYTEC_WEBHOOK_SECRET" required:"true"`
	PaytecMerchantID string        `envconfig:"PAGOSUR_PAYTEC_MERCHANT_ID" required:"true"`
	RawPayloadMaxKiB int           `envconfig:"PAGOSUR_GATEWAY_RAW_PAYLOAD_MAX_KIB" default:"8"`
	IdempotencyTTL   time.Duration `envconfig:"PAGOSUR_GATEWAY_IDEMPOTENCY_TTL" default:"720h"`
}

type ReconcileConfig struct {
	LockTimeout     time.Duration `envconfig:"PAGOSUR_RECONCILE_LOCK_TIMEOUT" default:"5s"`
	HandlerBudget   time.Duration `envconfig:"PAGOSUR_RECONCILE_HANDLER_BUDGET" default:"10s"`
	AmountTolerance int64         `envconfig:"PAGOSUR_RECONCILE_AMOUNT_TOLERANCE_CENTS" default:"0"`
}

type ReplayConfig struct {
	BatchSize    int           `envconfig:"PAGOSUR_REPLAY_BATCH_SIZE" default:"25"`
	PollInterval time.Duration `envconfig:"PAGOSUR_REPLAY_POLL_INTERVAL" default:"30s"`
	BaseBackoff  time.Duration `envconfig:"PAGOSUR_REPLAY_BASE_BACKOFF" default:"30s"`
	MaxBackoff   time.Duration `envconfig:"PAGOSUR_REPLAY_MAX_BACKOFF" default:"1h"`
	MaxAttempts  int           `envconfig:"PAGOSUR_REPLAY_MAX_ATTEMPTS" default:"10"`
	LockTTL      time.Duration `envconfig:"PAGOSUR_REPLAY_LOCK_TTL" default:"2m"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"PAGOSUR_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"PAGOSUR_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"PAGOSUR_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic        string `envconfig:"PAGOSUR_PUBSUB_NOTIFICATION_TOPIC" default:"ps-notification-events"`
	NotificationSubscription string `envconfig:"PAGOSUR_PUBSUB_NOTIFICATION_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PAGOSUR_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PAGOSUR_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PAGOSUR_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PAGOSUR_AUTO_MIGRATE" default:"false"`
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
