package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"

	"github.com/mizuki-dev/guildgate/internal/config"
	"github.com/mizuki-dev/guildgate/internal/discord"
	"github.com/mizuki-dev/guildgate/internal/http/handler"
	"github.com/mizuki-dev/guildgate/internal/http/router"
	"github.com/mizuki-dev/guildgate/internal/observability"
	"github.com/mizuki-dev/guildgate/internal/persistence"
	"github.com/mizuki-dev/guildgate/internal/reputation"
	"github.com/mizuki-dev/guildgate/internal/repository"
	"github.com/mizuki-dev/guildgate/internal/security"
	"github.com/mizuki-dev/guildgate/internal/service"
)

// App aggregates the wired components of one process.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime

	Gateway     persistence.Gateway
	Sessions    *repository.SessionStore
	Credentials *repository.CredentialStore
	Settings    *repository.SettingsStore
	Dispatch    *service.DispatchService
}

// Bootstrap builds the full object graph, reconciles in-memory state from
// durable storage and returns a ready-to-run App.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	runtime, err := observability.InitRuntime(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}
	if bridged := runtime.Logger(logger); bridged != logger {
		logger = bridged
		slog.SetDefault(logger)
	}

	gateway := buildGateway(cfg, logger)

	codec, err := security.NewStateTokenCodec(cfg.DiscordClientSecret)
	if err != nil {
		return nil, err
	}

	sessions := repository.NewSessionStore(codec, gateway, cfg.SessionTTL, logger)
	credentials := repository.NewCredentialStore(gateway, logger)
	settings := repository.NewSettingsStore(gateway, logger)

	if err := reconcile(ctx, gateway, sessions, credentials, settings, logger); err != nil {
		// Startup reconciliation is best-effort; an empty state is valid.
		logger.Warn("startup reconciliation failed", "error", err)
	}

	oauthCfg := discord.NewOAuthConfig(cfg.DiscordClientID, cfg.DiscordClientSecret, cfg.OAuthRedirectURL, cfg.DiscordAPIBaseURL)
	restClient := discord.NewClient(nil, cfg.DiscordAPIBaseURL, cfg.DiscordBotToken)
	reputationClient := reputation.NewClient(nil, cfg.ReputationBaseURL, cfg.ReputationTimeout)

	gate := service.NewGate(reputationClient, logger)
	tokens := service.NewTokenService(credentials, oauthCfg, logger)
	dispatch := service.NewDispatchService(credentials, tokens, restClient, logger)
	granter := service.NewMembershipGranter(restClient)
	callbacks := service.NewCallbackService(oauthCfg, restClient, sessions, credentials, gate, granter, logger)
	panels := service.NewPanelService(sessions, settings, oauthCfg, logger)

	mux := router.NewRouter(router.Dependencies{
		CallbackHandler:      handler.NewCallbackHandler(callbacks),
		SessionHandler:       handler.NewSessionHandler(panels, sessions),
		SettingsHandler:      handler.NewSettingsHandler(settings),
		DispatchHandler:      handler.NewDispatchHandler(dispatch),
		OperatorToken:        cfg.OperatorToken,
		PublicDir:            cfg.PublicDir,
		CallbackRateLimitRPM: cfg.CallbackRateLimitRPM,
		APIRateLimitRPM:      cfg.APIRateLimitRPM,
		EnableOTelHTTP:       cfg.OTELMetricsEnabled || cfg.OTELTracingEnabled,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		Config:        cfg,
		Logger:        logger,
		Server:        server,
		Observability: runtime,
		Gateway:       gateway,
		Sessions:      sessions,
		Credentials:   credentials,
		Settings:      settings,
		Dispatch:      dispatch,
	}, nil
}

func buildGateway(cfg *config.Config, logger *slog.Logger) persistence.Gateway {
	local := persistence.NewFileGateway(cfg.DataDir)

	var remote persistence.Gateway
	switch cfg.RemoteBackend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		remote = persistence.NewRedisGateway(client, "guildgate")
	case config.BackendSQLite:
		g, err := persistence.NewGormGateway(sqlite.Open(cfg.DatabaseDSN), "sqlite")
		if err != nil {
			logger.Warn("sqlite backend unavailable, continuing without remote store", "error", err)
			remote = persistence.Noop{}
		} else {
			remote = g
		}
	case config.BackendPostgres:
		g, err := persistence.NewGormGateway(postgres.Open(cfg.DatabaseDSN), "postgres")
		if err != nil {
			logger.Warn("postgres backend unavailable, continuing without remote store", "error", err)
			remote = persistence.Noop{}
		} else {
			remote = g
		}
	default:
		remote = persistence.Noop{}
	}

	return persistence.NewDual(local, remote, logger)
}

func reconcile(
	ctx context.Context,
	gateway persistence.Gateway,
	sessions *repository.SessionStore,
	credentials *repository.CredentialStore,
	settings *repository.SettingsStore,
	logger *slog.Logger,
) error {
	sessionEntries, err := gateway.Sessions(ctx)
	if err != nil {
		return err
	}
	restored, discarded := 0, 0
	for _, e := range sessionEntries {
		e.Session.Token = e.Token
		if sessions.Restore(e.Session) {
			restored++
		} else {
			discarded++
		}
	}

	userEntries, err := gateway.Users(ctx)
	if err != nil {
		return err
	}
	for _, e := range userEntries {
		credentials.Restore(e.UserID, e.Credential)
	}

	settingsEntries, err := gateway.GuildSettings(ctx)
	if err != nil {
		return err
	}
	for _, e := range settingsEntries {
		settings.Restore(e.GuildID, e.Settings)
	}

	logger.Info("state reconciled from durable storage",
		"sessions", restored,
		"sessions_discarded", discarded,
		"users", len(userEntries),
		"guilds", len(settingsEntries),
	)
	return nil
}

// Snapshot writes the full in-memory state through the gateway. Failures
// are logged and never affect in-memory state.
func (a *App) Snapshot(ctx context.Context) {
	for _, s := range a.Sessions.All() {
		if err := a.Gateway.SaveSession(ctx, s.Token, s); err != nil {
			a.Logger.Warn("snapshot session save failed", "error", err)
		}
	}
	for _, e := range a.Credentials.AllEntries() {
		if err := a.Gateway.SaveUser(ctx, e.UserID, e.Credential); err != nil {
			a.Logger.Warn("snapshot user save failed", "error", err)
		}
	}
	for guildID, sec := range a.Settings.All() {
		if err := a.Gateway.SaveGuildSettings(ctx, guildID, sec); err != nil {
			a.Logger.Warn("snapshot settings save failed", "error", err)
		}
	}
}

// SnapshotLoop periodically saves the full state until ctx is done.
func (a *App) SnapshotLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.Config.SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// One final snapshot on the way out.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			a.Snapshot(shutdownCtx)
			cancel()
			return nil
		case <-ticker.C:
			a.Snapshot(ctx)
		}
	}
}

// SweepLoop periodically drops stale sessions, in memory and durably.
func (a *App) SweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.Config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			dropped := a.Sessions.Sweep(ctx)
			cutoff := time.Now().Add(-a.Config.SessionTTL)
			removed, err := a.Gateway.CleanupOldSessions(ctx, cutoff)
			if err != nil {
				a.Logger.Warn("session cleanup failed", "error", err)
				continue
			}
			if dropped > 0 || removed > 0 {
				a.Logger.Info("stale sessions swept", "memory", dropped, "durable", removed)
			}
		}
	}
}
