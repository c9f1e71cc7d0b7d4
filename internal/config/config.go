package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/anoteng/regnskap/pkg/db"
	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	OTLPEndpoint string
	Telemetry    TelemetryConfig

	DB    db.Config
	Redis RedisConfig

	BankSync BankSyncConfig
	Metrics  MetricsPushConfig
}

type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OtelProtocol  string
	SamplingRatio float64
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type BankSyncConfig struct {
	// TokenSecret seals provider tokens at rest.
	TokenSecret      string
	RedirectURL      string
	InitialSyncDays  int
	HTTPTimeout      time.Duration
	LockTTL          time.Duration
	RunnerInterval   time.Duration
	RunnerJobTimeout time.Duration
	// ManualSyncBurst manual syncs per connection refill over ManualSyncWindow.
	// Zero disables the limit.
	ManualSyncBurst  int
	ManualSyncWindow time.Duration
}

type MetricsPushConfig struct {
	Enabled   bool
	Exporter  string
	Endpoint  string
	AuthToken string
	Job       string
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(func(cfg Config) db.Config { return cfg.DB }),
	fx.Provide(NewEngineSettingsHolder),
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "regnskap"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		NodeID:       getenvInt64("SNOWFLAKE_NODE", 1),
		OTLPEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),
		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:   getenvBool("OTEL_ENABLED", false),
			OtelProtocol:  strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
		DB: db.Config{
			Type:            getenv("DATABASE_TYPE", "postgres"),
			Host:            getenv("DATABASE_HOST", "localhost"),
			Port:            getenv("DATABASE_PORT", "5432"),
			Name:            getenv("DATABASE_NAME", "regnskap"),
			User:            getenv("DATABASE_USER", "postgres"),
			Password:        getenv("DATABASE_PASSWORD", ""),
			SSLMode:         getenv("DATABASE_SSLMODE", "disable"),
			Path:            getenv("DATABASE_PATH", ""),
			MaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
			MaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 20)),
			ConnMaxLifetime: getenvDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getenvDuration("DATABASE_CONN_MAX_IDLE_TIME", 5*time.Minute),
			SlowQuery:       getenvDuration("DATABASE_SLOW_QUERY", 200*time.Millisecond),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       int(getenvInt64("REDIS_DB", 0)),
		},
		BankSync: BankSyncConfig{
			TokenSecret:      strings.TrimSpace(getenv("SECRET_KEY", "")),
			RedirectURL:      strings.TrimSpace(getenv("BANK_OAUTH_REDIRECT_URL", "http://localhost:8080/api/bank-connections/callback")),
			InitialSyncDays:  int(getenvInt64("BANK_SYNC_INITIAL_DAYS", 90)),
			HTTPTimeout:      getenvDuration("BANK_SYNC_HTTP_TIMEOUT", 30*time.Second),
			LockTTL:          getenvDuration("BANK_SYNC_LOCK_TTL", 5*time.Minute),
			RunnerInterval:   getenvDuration("BANK_SYNC_RUNNER_INTERVAL", 15*time.Minute),
			RunnerJobTimeout: getenvDuration("BANK_SYNC_RUNNER_TIMEOUT", 10*time.Minute),
			ManualSyncBurst:  int(getenvInt64("BANK_SYNC_MANUAL_BURST", 4)),
			ManualSyncWindow: getenvDuration("BANK_SYNC_MANUAL_WINDOW", time.Hour),
		},
		Metrics: MetricsPushConfig{
			Enabled:   getenvBool("METRICS_PUSH_ENABLED", false),
			Exporter:  strings.ToLower(getenv("METRICS_PUSH_EXPORTER", "")),
			Endpoint:  strings.TrimSpace(getenv("METRICS_PUSH_ENDPOINT", "")),
			AuthToken: strings.TrimSpace(getenv("METRICS_PUSH_AUTH_TOKEN", "")),
			Job:       getenv("METRICS_PUSH_JOB", "regnskap_bank_sync"),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
