package service

import (
	"context"
	"log/slog"

	"github.com/mizuki-dev/guildgate/internal/discord"
	"github.com/mizuki-dev/guildgate/internal/repository"
)

// PanelService creates authorization panels: it snapshots the guild's
// current security settings into a fresh session and builds the authorize
// URL carrying the session token as OAuth state.
type PanelService struct {
	sessions *repository.SessionStore
	settings *repository.SettingsStore
	oauth    discord.OAuthProvider
	logger   *slog.Logger
}

func NewPanelService(sessions *repository.SessionStore, settings *repository.SettingsStore, oauth discord.OAuthProvider, logger *slog.Logger) *PanelService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PanelService{sessions: sessions, settings: settings, oauth: oauth, logger: logger}
}

// CreatePanel returns the new session token and the authorization URL to
// embed in the panel.
func (s *PanelService) CreatePanel(ctx context.Context, guildID, roleID, channelID string) (string, string, error) {
	sec := s.settings.Get(guildID)
	token, err := s.sessions.Create(ctx, repository.CreateSessionParams{
		GuildID:   guildID,
		RoleID:    roleID,
		ChannelID: channelID,
		Security:  sec,
	})
	if err != nil {
		return "", "", err
	}
	s.logger.Info("authorization panel created", "guild_id", guildID, "role_id", roleID)
	return token, s.oauth.AuthCodeURL(token), nil
}
