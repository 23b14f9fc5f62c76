package persistence

import (
	"context"
	"log/slog"
	"time"

	"github.com/mizuki-dev/guildgate/internal/domain"
)

// SessionEntry is one durable session row.
type SessionEntry struct {
	Token   string         `json:"token"`
	Session domain.Session `json:"session"`
}

// UserEntry is one durable credential row. Order of entries returned by
// Users is the original insertion order.
type UserEntry struct {
	UserID     string            `json:"user_id"`
	Credential domain.Credential `json:"credential"`
}

// SettingsEntry is one durable guild-settings row.
type SettingsEntry struct {
	GuildID  string                `json:"guild_id"`
	Settings domain.SecurityConfig `json:"settings"`
}

// Gateway is the durable side of the three in-memory collections. Every
// implementation is best-effort: the core's in-memory state is the source of
// truth during normal operation and a gateway failure never rolls back an
// in-memory mutation.
type Gateway interface {
	SaveSession(ctx context.Context, token string, s domain.Session) error
	SaveUser(ctx context.Context, userID string, c domain.Credential) error
	SaveGuildSettings(ctx context.Context, guildID string, sec domain.SecurityConfig) error
	DeleteSession(ctx context.Context, token string) error
	Sessions(ctx context.Context) ([]SessionEntry, error)
	Users(ctx context.Context) ([]UserEntry, error)
	GuildSettings(ctx context.Context) ([]SettingsEntry, error)
	CleanupOldSessions(ctx context.Context, cutoff time.Time) (int64, error)
	Name() string
}

// Noop discards writes and reads back nothing. Used when no backend is
// configured and as the zero fallback when a backend fails to initialize.
type Noop struct{}

func (Noop) SaveSession(context.Context, string, domain.Session) error              { return nil }
func (Noop) SaveUser(context.Context, string, domain.Credential) error              { return nil }
func (Noop) SaveGuildSettings(context.Context, string, domain.SecurityConfig) error { return nil }
func (Noop) DeleteSession(context.Context, string) error                            { return nil }
func (Noop) Sessions(context.Context) ([]SessionEntry, error)                       { return nil, nil }
func (Noop) Users(context.Context) ([]UserEntry, error)                             { return nil, nil }
func (Noop) GuildSettings(context.Context) ([]SettingsEntry, error)                 { return nil, nil }
func (Noop) CleanupOldSessions(context.Context, time.Time) (int64, error)           { return 0, nil }
func (Noop) Name() string                                                           { return "noop" }

// Dual writes through to a local gateway and one remote gateway. Reads merge
// remote-then-local with remote taking precedence; a failing side only logs.
type Dual struct {
	local  Gateway
	remote Gateway
	logger *slog.Logger
}

func NewDual(local, remote Gateway, logger *slog.Logger) *Dual {
	if local == nil {
		local = Noop{}
	}
	if remote == nil {
		remote = Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dual{local: local, remote: remote, logger: logger}
}

func (d *Dual) Name() string { return d.local.Name() + "+" + d.remote.Name() }

func (d *Dual) both(ctx context.Context, op string, fn func(Gateway) error) error {
	var firstErr error
	for _, g := range []Gateway{d.local, d.remote} {
		if err := fn(g); err != nil {
			d.logger.Warn("persistence write failed", "backend", g.Name(), "op", op, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (d *Dual) SaveSession(ctx context.Context, token string, s domain.Session) error {
	return d.both(ctx, "save_session", func(g Gateway) error { return g.SaveSession(ctx, token, s) })
}

func (d *Dual) SaveUser(ctx context.Context, userID string, c domain.Credential) error {
	return d.both(ctx, "save_user", func(g Gateway) error { return g.SaveUser(ctx, userID, c) })
}

func (d *Dual) SaveGuildSettings(ctx context.Context, guildID string, sec domain.SecurityConfig) error {
	return d.both(ctx, "save_guild_settings", func(g Gateway) error { return g.SaveGuildSettings(ctx, guildID, sec) })
}

func (d *Dual) DeleteSession(ctx context.Context, token string) error {
	return d.both(ctx, "delete_session", func(g Gateway) error { return g.DeleteSession(ctx, token) })
}

func (d *Dual) Sessions(ctx context.Context) ([]SessionEntry, error) {
	remote, err := d.remote.Sessions(ctx)
	if err != nil {
		d.logger.Warn("persistence read failed", "backend", d.remote.Name(), "op", "sessions", "error", err)
	}
	local, err := d.local.Sessions(ctx)
	if err != nil {
		d.logger.Warn("persistence read failed", "backend", d.local.Name(), "op", "sessions", "error", err)
	}
	seen := make(map[string]struct{}, len(remote))
	merged := make([]SessionEntry, 0, len(remote)+len(local))
	for _, e := range remote {
		seen[e.Token] = struct{}{}
		merged = append(merged, e)
	}
	for _, e := range local {
		if _, ok := seen[e.Token]; !ok {
			merged = append(merged, e)
		}
	}
	return merged, nil
}

func (d *Dual) Users(ctx context.Context) ([]UserEntry, error) {
	remote, err := d.remote.Users(ctx)
	if err != nil {
		d.logger.Warn("persistence read failed", "backend", d.remote.Name(), "op", "users", "error", err)
	}
	local, err := d.local.Users(ctx)
	if err != nil {
		d.logger.Warn("persistence read failed", "backend", d.local.Name(), "op", "users", "error", err)
	}
	seen := make(map[string]struct{}, len(remote))
	merged := make([]UserEntry, 0, len(remote)+len(local))
	for _, e := range remote {
		seen[e.UserID] = struct{}{}
		merged = append(merged, e)
	}
	for _, e := range local {
		if _, ok := seen[e.UserID]; !ok {
			merged = append(merged, e)
		}
	}
	return merged, nil
}

func (d *Dual) GuildSettings(ctx context.Context) ([]SettingsEntry, error) {
	remote, err := d.remote.GuildSettings(ctx)
	if err != nil {
		d.logger.Warn("persistence read failed", "backend", d.remote.Name(), "op", "guild_settings", "error", err)
	}
	local, err := d.local.GuildSettings(ctx)
	if err != nil {
		d.logger.Warn("persistence read failed", "backend", d.local.Name(), "op", "guild_settings", "error", err)
	}
	seen := make(map[string]struct{}, len(remote))
	merged := make([]SettingsEntry, 0, len(remote)+len(local))
	for _, e := range remote {
		seen[e.GuildID] = struct{}{}
		merged = append(merged, e)
	}
	for _, e := range local {
		if _, ok := seen[e.GuildID]; !ok {
			merged = append(merged, e)
		}
	}
	return merged, nil
}

func (d *Dual) CleanupOldSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for _, g := range []Gateway{d.local, d.remote} {
		n, err := g.CleanupOldSessions(ctx, cutoff)
		if err != nil {
			d.logger.Warn("persistence cleanup failed", "backend", g.Name(), "error", err)
			continue
		}
		total += n
	}
	return total, nil
}
