package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DISCORD_CLIENT_ID", "client-id")
	t.Setenv("DISCORD_CLIENT_SECRET", "client-secret")
	t.Setenv("DISCORD_BOT_TOKEN", "bot-token")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.HTTPAddr != ":3000" {
		t.Fatalf("http addr: %s", cfg.HTTPAddr)
	}
	if cfg.RemoteBackend != BackendNone {
		t.Fatalf("backend: %s", cfg.RemoteBackend)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Fatalf("session ttl: %s", cfg.SessionTTL)
	}
	if cfg.SnapshotInterval != 5*time.Minute {
		t.Fatalf("snapshot interval: %s", cfg.SnapshotInterval)
	}
	if cfg.SweepInterval != time.Hour {
		t.Fatalf("sweep interval: %s", cfg.SweepInterval)
	}
	if cfg.ReputationBaseURL != "http://proxycheck.io" {
		t.Fatalf("reputation url: %s", cfg.ReputationBaseURL)
	}
	if cfg.OTELMetricsEnabled || cfg.OTELTracingEnabled || cfg.OTELLogsEnabled {
		t.Fatalf("telemetry export should be off by default")
	}
	if cfg.OAuthRedirectURL != "http://localhost:3000/callback" {
		t.Fatalf("redirect url: %s", cfg.OAuthRedirectURL)
	}
}

func TestLoadMissingDiscordSettings(t *testing.T) {
	t.Setenv("DISCORD_CLIENT_ID", "")
	t.Setenv("DISCORD_CLIENT_SECRET", "")
	t.Setenv("DISCORD_BOT_TOKEN", "bot-token")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, name := range []string{"DISCORD_CLIENT_ID", "DISCORD_CLIENT_SECRET"} {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("error does not name %s: %v", name, err)
		}
	}
}

func TestLoadSQLBackendRequiresDSN(t *testing.T) {
	setRequired(t)
	t.Setenv("REMOTE_BACKEND", "postgres")
	t.Setenv("DATABASE_DSN", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected DSN validation error")
	}

	t.Setenv("DATABASE_DSN", "host=localhost user=app dbname=guildgate")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load with dsn: %v", err)
	}
	if cfg.RemoteBackend != BackendPostgres {
		t.Fatalf("backend: %s", cfg.RemoteBackend)
	}
}

func TestLoadUnknownBackend(t *testing.T) {
	setRequired(t)
	t.Setenv("REMOTE_BACKEND", "etcd")

	if _, err := Load(); err == nil {
		t.Fatalf("expected unknown backend error")
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SESSION_TTL", "1h")
	t.Setenv("OAUTH_REDIRECT_URL", "https://gate.example.com/callback")
	t.Setenv("REMOTE_BACKEND", "redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("OTEL_LOGS_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SessionTTL != time.Hour {
		t.Fatalf("session ttl: %s", cfg.SessionTTL)
	}
	if cfg.OAuthRedirectURL != "https://gate.example.com/callback" {
		t.Fatalf("redirect url: %s", cfg.OAuthRedirectURL)
	}
	if cfg.RemoteBackend != BackendRedis || cfg.RedisDB != 3 {
		t.Fatalf("redis config: %s db=%d", cfg.RemoteBackend, cfg.RedisDB)
	}
	if !cfg.OTELLogsEnabled {
		t.Fatalf("log export should be enabled")
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	setRequired(t)
	t.Setenv("SESSION_TTL", "soon")
	t.Setenv("CALLBACK_RATE_LIMIT_RPM", "many")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Fatalf("unparsable ttl must fall back: %s", cfg.SessionTTL)
	}
	if cfg.CallbackRateLimitRPM != 30 {
		t.Fatalf("unparsable int must fall back: %d", cfg.CallbackRateLimitRPM)
	}
}
