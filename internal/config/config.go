package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend selects the remote side of the persistence gateway. The core never
// branches on which backend is active; selection happens once at startup.
type Backend string

const (
	BackendNone     Backend = "none"
	BackendRedis    Backend = "redis"
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

// Config contains runtime configuration values.
type Config struct {
	Environment string
	HTTPAddr    string
	PublicDir   string
	BaseURL     string

	DiscordClientID     string
	DiscordClientSecret string
	DiscordBotToken     string
	DiscordAPIBaseURL   string
	OAuthRedirectURL    string

	OperatorToken string

	DataDir       string
	RemoteBackend Backend
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DatabaseDSN   string

	SessionTTL       time.Duration
	SnapshotInterval time.Duration
	SweepInterval    time.Duration

	ReputationBaseURL string
	ReputationTimeout time.Duration

	CallbackRateLimitRPM int
	APIRateLimitRPM      int

	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELServiceName           string
	OTELMetricsExportInterval time.Duration

	LogLevel string
}

// Load reads configuration from the environment with sane defaults. A .env
// file is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("APP_ENV", "development"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":3000"),
		PublicDir:   getEnv("PUBLIC_DIR", "public"),
		BaseURL:     getEnv("BASE_URL", "http://localhost:3000"),

		DiscordClientID:     os.Getenv("DISCORD_CLIENT_ID"),
		DiscordClientSecret: os.Getenv("DISCORD_CLIENT_SECRET"),
		DiscordBotToken:     os.Getenv("DISCORD_BOT_TOKEN"),
		DiscordAPIBaseURL:   getEnv("DISCORD_API_BASE_URL", "https://discord.com"),
		OperatorToken:       os.Getenv("OPERATOR_TOKEN"),

		DataDir:       getEnv("DATA_DIR", "data"),
		RemoteBackend: Backend(getEnv("REMOTE_BACKEND", string(BackendNone))),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),
		DatabaseDSN:   os.Getenv("DATABASE_DSN"),

		SessionTTL:       getDuration("SESSION_TTL", 24*time.Hour),
		SnapshotInterval: getDuration("SNAPSHOT_INTERVAL", 5*time.Minute),
		SweepInterval:    getDuration("SWEEP_INTERVAL", time.Hour),

		ReputationBaseURL: getEnv("REPUTATION_BASE_URL", "http://proxycheck.io"),
		ReputationTimeout: getDuration("REPUTATION_TIMEOUT", 5*time.Second),

		CallbackRateLimitRPM: getInt("CALLBACK_RATE_LIMIT_RPM", 30),
		APIRateLimitRPM:      getInt("API_RATE_LIMIT_RPM", 120),

		OTELMetricsEnabled:        getBool("OTEL_METRICS_ENABLED", false),
		OTELTracingEnabled:        getBool("OTEL_TRACING_ENABLED", false),
		OTELLogsEnabled:           getBool("OTEL_LOGS_ENABLED", false),
		OTELExporterOTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure:  getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELServiceName:           getEnv("OTEL_SERVICE_NAME", "guildgate"),
		OTELMetricsExportInterval: getDuration("OTEL_METRICS_EXPORT_INTERVAL", 30*time.Second),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	cfg.OAuthRedirectURL = getEnv("OAUTH_REDIRECT_URL", strings.TrimRight(cfg.BaseURL, "/")+"/callback")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.DiscordClientID == "" {
		missing = append(missing, "DISCORD_CLIENT_ID")
	}
	if c.DiscordClientSecret == "" {
		missing = append(missing, "DISCORD_CLIENT_SECRET")
	}
	if c.DiscordBotToken == "" {
		missing = append(missing, "DISCORD_BOT_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("validate config: missing %s", strings.Join(missing, ", "))
	}

	switch c.RemoteBackend {
	case BackendNone, BackendRedis:
	case BackendSQLite, BackendPostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("validate config: DATABASE_DSN required for %s backend", c.RemoteBackend)
		}
	default:
		return fmt.Errorf("validate config: unknown REMOTE_BACKEND %q", c.RemoteBackend)
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("validate config: SESSION_TTL must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
