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
	PIN          PINConfig
	FeatureFlags FeatureFlagsConfig
	Fees         FeeConfig
	Settlement   SettlementConfig
	Gateway      GatewayConfig
	Reserve      ReserveConfig
	Webhook      WebhookConfig
	RateLimit    RateLimitConfig
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
	if _, err := cfg.Settlement.CutoffClock(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"ROSCA_APP_ENV" required:"true"`
	Port         string   `envconfig:"ROSCA_APP_PORT" default:"8080"`
	LogLevel     string   `envconfig:"ROSCA_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"ROSCA_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"ROSCA_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ROSCA_SERVICE_KIND" default:"api"`

	// MetricsAddr is the scrape listener of the background workers. The API
	// serves /metrics on its own port.
	MetricsAddr string `envconfig:"ROSCA_METRICS_ADDR" default:":9090"`
}

type DBConfig struct {
	DSN    string `envconfig:"ROSCA_DB_DSN"`
	Driver string `envconfig:"ROSCA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ROSCA_DB_HOST"`
	LegacyPort     int    `envconfig:"ROSCA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ROSCA_DB_USER"`
	LegacyPassword string `envconfig:"ROSCA_DB_PASSWORD"`
	LegacyName     string `envconfig:"ROSCA_DB_NAME"`
	LegacySSLMode  string `envconfig:"ROSCA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ROSCA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ROSCA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ROSCA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ROSCA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"ROSCA_DB_SLOW_QUERY" default:"500ms"`
}

// IsSQLite reports whether the local sqlite driver was selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"ROSCA_REDIS_URL"`
	Address      string        `envconfig:"ROSCA_REDIS_ADDR"`
	Password     string        `envconfig:"ROSCA_REDIS_PASSWORD"`
	DB           int           `envconfig:"ROSCA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ROSCA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ROSCA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ROSCA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ROSCA_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"ROSCA_REDIS_WRITE_TIMEOUT" default:"3s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"ROSCA_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"ROSCA_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"ROSCA_JWT_EXPIRATION_MINUTES" default:"60"`
}

// PINConfig holds the argon2id parameters used for payout PIN hashes.
type PINConfig struct {
	ArgonMemoryKB    int           `envconfig:"ROSCA_PIN_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int           `envconfig:"ROSCA_PIN_ARGON_TIME" default:"3"`
	ArgonParallelism int           `envconfig:"ROSCA_PIN_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int           `envconfig:"ROSCA_PIN_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int           `envconfig:"ROSCA_PIN_ARGON_KEY_LEN" default:"32"`
	MaxAttempts      int           `envconfig:"ROSCA_PIN_MAX_ATTEMPTS" default:"5"`
	AttemptWindow    time.Duration `envconfig:"ROSCA_PIN_ATTEMPT_WINDOW" default:"15m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ROSCA_AUTO_MIGRATE" default:"false"`
}

// FeeConfig expresses the fee schedule in basis points of the gross amount.
type FeeConfig struct {
	PlatformBPS    int64 `envconfig:"ROSCA_FEE_PLATFORM_BPS" default:"1000"`
	ReserveBPS     int64 `envconfig:"ROSCA_FEE_RESERVE_BPS" default:"100"`
	InstantFlat    int64 `envconfig:"ROSCA_FEE_INSTANT_FLAT" default:"500"`
	TrustScoreBump int   `envconfig:"ROSCA_TRUST_SCORE_BUMP" default:"2"`
}

type SettlementConfig struct {
	Cutoff         string        `envconfig:"ROSCA_SETTLEMENT_CUTOFF" default:"09:00"`
	Timezone       string        `envconfig:"ROSCA_SETTLEMENT_TIMEZONE" default:"UTC"`
	Workers        int           `envconfig:"ROSCA_SETTLEMENT_WORKERS" default:"4"`
	BatchLimit     int           `envconfig:"ROSCA_SETTLEMENT_BATCH_LIMIT" default:"500"`
	EntryTimeout   time.Duration `envconfig:"ROSCA_SETTLEMENT_ENTRY_TIMEOUT" default:"60s"`
	CallTimeout    time.Duration `envconfig:"ROSCA_SETTLEMENT_CALL_TIMEOUT" default:"15s"`
	CronInterval   time.Duration `envconfig:"ROSCA_SETTLEMENT_CRON_INTERVAL" default:"5m"`
	CronJobTimeout time.Duration `envconfig:"ROSCA_SETTLEMENT_CRON_JOB_TIMEOUT" default:"20m"`
	PollMinAge     time.Duration `envconfig:"ROSCA_SETTLEMENT_POLL_MIN_AGE" default:"30m"`
	PollBatchLimit int           `envconfig:"ROSCA_SETTLEMENT_POLL_BATCH_LIMIT" default:"100"`
	SweepMinAge    time.Duration `envconfig:"ROSCA_SETTLEMENT_SWEEP_MIN_AGE" default:"10m"`
}

// CutoffClock parses the HH:MM cutoff into hour and minute of day.
func (s SettlementConfig) CutoffClock() (time.Duration, error) {
	raw := strings.TrimSpace(s.Cutoff)
	if raw == "" {
		raw = "09:00"
	}
	parsed, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q (expected HH:MM): %w", EnvSettlementCutoff, s.Cutoff, err)
	}
	return time.Duration(parsed.Hour())*time.Hour + time.Duration(parsed.Minute())*time.Minute, nil
}

// Location resolves the settlement timezone, falling back to UTC.
func (s SettlementConfig) Location() *time.Location {
	name := strings.TrimSpace(s.Timezone)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

type GatewayConfig struct {
	BaseURL       string        `envconfig:"ROSCA_GATEWAY_BASE_URL" required:"true"`
	SecretKey     string        `envconfig:"ROSCA_GATEWAY_SECRET_KEY" required:"true"`
	WebhookSecret string        `envconfig:"ROSCA_GATEWAY_WEBHOOK_SECRET"`
	Currency      string        `envconfig:"ROSCA_GATEWAY_CURRENCY" default:"XAF"`
	Timeout       time.Duration `envconfig:"ROSCA_GATEWAY_TIMEOUT" default:"20s"`
}

type ReserveConfig struct {
	Mode    string        `envconfig:"ROSCA_RESERVE_MODE" default:"local"`
	BaseURL string        `envconfig:"ROSCA_RESERVE_BASE_URL"`
	APIKey  string        `envconfig:"ROSCA_RESERVE_API_KEY"`
	Timeout time.Duration `envconfig:"ROSCA_RESERVE_TIMEOUT" default:"10s"`
}

// IsRemote reports whether reserve coverage is delegated to an external service.
func (r ReserveConfig) IsRemote() bool {
	return strings.EqualFold(strings.TrimSpace(r.Mode), ReserveModeRemote)
}

type WebhookConfig struct {
	IdempotencyTTL time.Duration `envconfig:"ROSCA_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

// RateLimitConfig throttles the instant payout route per client IP and per user.
type RateLimitConfig struct {
	InstantWindow    time.Duration `envconfig:"ROSCA_RATE_LIMIT_INSTANT_WINDOW" default:"1m"`
	InstantIPLimit   int           `envconfig:"ROSCA_RATE_LIMIT_INSTANT_IP" default:"30"`
	InstantUserLimit int           `envconfig:"ROSCA_RATE_LIMIT_INSTANT_USER" default:"10"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"ROSCA_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"ROSCA_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"GOOGLE_APPLICATION_CREDENTIALS"`
}

// BigQueryConfig enables the settlement export when Dataset is set.
type BigQueryConfig struct {
	Dataset         string        `envconfig:"ROSCA_BIGQUERY_DATASET"`
	SettlementTable string        `envconfig:"ROSCA_BIGQUERY_SETTLEMENT_TABLE" default:"payout_settlements"`
	ExportWindow    time.Duration `envconfig:"ROSCA_BIGQUERY_EXPORT_WINDOW" default:"2h"`
	CreateTable     bool          `envconfig:"ROSCA_BIGQUERY_CREATE_TABLE" default:"false"`
}

// Enabled reports whether settlement rows should be exported.
func (c BigQueryConfig) Enabled() bool {
	return strings.TrimSpace(c.Dataset) != ""
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"ROSCA_PUBSUB_NOTIFICATION_TOPIC" default:"rosca-notification-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"ROSCA_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"ROSCA_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"ROSCA_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"ROSCA_OUTBOX_RETENTION_DAYS" default:"30"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required when %s=%s", EnvDBDSN, EnvDBDriver, DBDriverSQLite)
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
