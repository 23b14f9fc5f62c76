package repository

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mizuki-dev/guildgate/internal/domain"
	"github.com/mizuki-dev/guildgate/internal/observability"
	"github.com/mizuki-dev/guildgate/internal/persistence"
)

// SettingsStore holds per-guild security settings. Absent guilds default to
// every check disabled.
type SettingsStore struct {
	mu       sync.Mutex
	settings map[string]domain.SecurityConfig

	gateway persistence.Gateway
	logger  *slog.Logger
}

func NewSettingsStore(gateway persistence.Gateway, logger *slog.Logger) *SettingsStore {
	if gateway == nil {
		gateway = persistence.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsStore{
		settings: make(map[string]domain.SecurityConfig),
		gateway:  gateway,
		logger:   logger,
	}
}

// Get returns the guild's settings, all-false when never configured.
func (s *SettingsStore) Get(guildID string) domain.SecurityConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings[guildID]
}

// Set overwrites the guild's settings. Already-issued sessions keep the
// snapshot they were created with.
func (s *SettingsStore) Set(ctx context.Context, guildID string, sec domain.SecurityConfig) {
	s.mu.Lock()
	s.settings[guildID] = sec
	s.mu.Unlock()

	if err := s.gateway.SaveGuildSettings(ctx, guildID, sec); err != nil {
		observability.RecordPersistenceOperation(ctx, s.gateway.Name(), "save_guild_settings", "error")
		s.logger.Warn("settings write-through failed", "guild_id", guildID, "error", err)
	} else {
		observability.RecordPersistenceOperation(ctx, s.gateway.Name(), "save_guild_settings", "success")
	}
}

// Restore inserts settings loaded from durable storage without writing back.
func (s *SettingsStore) Restore(guildID string, sec domain.SecurityConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[guildID] = sec
}

// All returns a snapshot of every configured guild.
func (s *SettingsStore) All() map[string]domain.SecurityConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.SecurityConfig, len(s.settings))
	for k, v := range s.settings {
		out[k] = v
	}
	return out
}
