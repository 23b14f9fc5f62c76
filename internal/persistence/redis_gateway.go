package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mizuki-dev/guildgate/internal/domain"
)

// RedisGateway stores each collection in a hash keyed by the record id.
// Credential insertion order is tracked in a separate list so Users can
// return entries in the order they were first written.
type RedisGateway struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisGateway(client redis.UniversalClient, prefix string) *RedisGateway {
	if prefix == "" {
		prefix = "guildgate"
	}
	return &RedisGateway{client: client, prefix: prefix}
}

func (g *RedisGateway) Name() string { return "redis" }

func (g *RedisGateway) key(collection string) string { return g.prefix + ":" + collection }

func (g *RedisGateway) SaveSession(ctx context.Context, token string, s domain.Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := g.client.HSet(ctx, g.key("sessions"), token, payload).Err(); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

func (g *RedisGateway) SaveUser(ctx context.Context, userID string, c domain.Credential) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	existed, err := g.client.HExists(ctx, g.key("users"), userID).Result()
	if err != nil {
		return fmt.Errorf("persist credential: %w", err)
	}
	if err := g.client.HSet(ctx, g.key("users"), userID, payload).Err(); err != nil {
		return fmt.Errorf("persist credential: %w", err)
	}
	if !existed {
		if err := g.client.RPush(ctx, g.key("users:order"), userID).Err(); err != nil {
			return fmt.Errorf("persist credential order: %w", err)
		}
	}
	return nil
}

func (g *RedisGateway) SaveGuildSettings(ctx context.Context, guildID string, sec domain.SecurityConfig) error {
	payload, err := json.Marshal(sec)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := g.client.HSet(ctx, g.key("settings"), guildID, payload).Err(); err != nil {
		return fmt.Errorf("persist settings: %w", err)
	}
	return nil
}

func (g *RedisGateway) DeleteSession(ctx context.Context, token string) error {
	if err := g.client.HDel(ctx, g.key("sessions"), token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (g *RedisGateway) Sessions(ctx context.Context) ([]SessionEntry, error) {
	raw, err := g.client.HGetAll(ctx, g.key("sessions")).Result()
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	entries := make([]SessionEntry, 0, len(raw))
	for token, payload := range raw {
		var s domain.Session
		if err := json.Unmarshal([]byte(payload), &s); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", token, err)
		}
		s.Token = token
		entries = append(entries, SessionEntry{Token: token, Session: s})
	}
	return entries, nil
}

func (g *RedisGateway) Users(ctx context.Context) ([]UserEntry, error) {
	raw, err := g.client.HGetAll(ctx, g.key("users")).Result()
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	order, err := g.client.LRange(ctx, g.key("users:order"), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("load user order: %w", err)
	}
	entries := make([]UserEntry, 0, len(raw))
	appendUser := func(userID, payload string) error {
		var c domain.Credential
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			return fmt.Errorf("decode credential %s: %w", userID, err)
		}
		entries = append(entries, UserEntry{UserID: userID, Credential: c})
		return nil
	}
	for _, userID := range order {
		payload, ok := raw[userID]
		if !ok {
			continue
		}
		if err := appendUser(userID, payload); err != nil {
			return nil, err
		}
		delete(raw, userID)
	}
	// Entries missing from the order list (written by an older process)
	// still surface, just without a guaranteed position.
	for userID, payload := range raw {
		if err := appendUser(userID, payload); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (g *RedisGateway) GuildSettings(ctx context.Context) ([]SettingsEntry, error) {
	raw, err := g.client.HGetAll(ctx, g.key("settings")).Result()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	entries := make([]SettingsEntry, 0, len(raw))
	for guildID, payload := range raw {
		var sec domain.SecurityConfig
		if err := json.Unmarshal([]byte(payload), &sec); err != nil {
			return nil, fmt.Errorf("decode settings %s: %w", guildID, err)
		}
		entries = append(entries, SettingsEntry{GuildID: guildID, Settings: sec})
	}
	return entries, nil
}

func (g *RedisGateway) CleanupOldSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	entries, err := g.Sessions(ctx)
	if err != nil {
		return 0, err
	}
	var removed int64
	for _, e := range entries {
		if !e.Session.CreatedAt.Before(cutoff) {
			continue
		}
		if err := g.client.HDel(ctx, g.key("sessions"), e.Token).Err(); err != nil {
			return removed, fmt.Errorf("delete stale session: %w", err)
		}
		removed++
	}
	return removed, nil
}
