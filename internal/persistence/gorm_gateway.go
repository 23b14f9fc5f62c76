package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mizuki-dev/guildgate/internal/domain"
)

// storedRecord is the single relational shape for all three collections.
// The auto-incremented id preserves first-insert order across restarts.
type storedRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Kind      string `gorm:"size:16;uniqueIndex:idx_kind_key;not null"`
	Key       string `gorm:"size:512;uniqueIndex:idx_kind_key;not null"`
	Value     []byte `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	kindSession  = "session"
	kindUser     = "user"
	kindSettings = "settings"
)

// GormGateway stores records relationally. The dialector decides the actual
// backend (sqlite or postgres); this code never branches on it.
type GormGateway struct {
	db   *gorm.DB
	name string
}

func NewGormGateway(dialector gorm.Dialector, name string) (*GormGateway, error) {
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&storedRecord{}); err != nil {
		return nil, fmt.Errorf("migrate records: %w", err)
	}
	return &GormGateway{db: db, name: name}, nil
}

func (g *GormGateway) Name() string { return g.name }

func (g *GormGateway) save(ctx context.Context, kind, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}
	rec := storedRecord{Kind: kind, Key: key, Value: payload}
	err = g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("persist %s: %w", kind, err)
	}
	return nil
}

func (g *GormGateway) load(ctx context.Context, kind string) ([]storedRecord, error) {
	var recs []storedRecord
	err := g.db.WithContext(ctx).Where("kind = ?", kind).Order("id asc").Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("load %s records: %w", kind, err)
	}
	return recs, nil
}

func (g *GormGateway) SaveSession(ctx context.Context, token string, s domain.Session) error {
	return g.save(ctx, kindSession, token, s)
}

func (g *GormGateway) SaveUser(ctx context.Context, userID string, c domain.Credential) error {
	return g.save(ctx, kindUser, userID, c)
}

func (g *GormGateway) SaveGuildSettings(ctx context.Context, guildID string, sec domain.SecurityConfig) error {
	return g.save(ctx, kindSettings, guildID, sec)
}

func (g *GormGateway) DeleteSession(ctx context.Context, token string) error {
	err := g.db.WithContext(ctx).
		Where("kind = ? AND key = ?", kindSession, token).
		Delete(&storedRecord{}).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (g *GormGateway) Sessions(ctx context.Context) ([]SessionEntry, error) {
	recs, err := g.load(ctx, kindSession)
	if err != nil {
		return nil, err
	}
	entries := make([]SessionEntry, 0, len(recs))
	for _, rec := range recs {
		var s domain.Session
		if err := json.Unmarshal(rec.Value, &s); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", rec.Key, err)
		}
		s.Token = rec.Key
		entries = append(entries, SessionEntry{Token: rec.Key, Session: s})
	}
	return entries, nil
}

func (g *GormGateway) Users(ctx context.Context) ([]UserEntry, error) {
	recs, err := g.load(ctx, kindUser)
	if err != nil {
		return nil, err
	}
	entries := make([]UserEntry, 0, len(recs))
	for _, rec := range recs {
		var c domain.Credential
		if err := json.Unmarshal(rec.Value, &c); err != nil {
			return nil, fmt.Errorf("decode credential %s: %w", rec.Key, err)
		}
		entries = append(entries, UserEntry{UserID: rec.Key, Credential: c})
	}
	return entries, nil
}

func (g *GormGateway) GuildSettings(ctx context.Context) ([]SettingsEntry, error) {
	recs, err := g.load(ctx, kindSettings)
	if err != nil {
		return nil, err
	}
	entries := make([]SettingsEntry, 0, len(recs))
	for _, rec := range recs {
		var sec domain.SecurityConfig
		if err := json.Unmarshal(rec.Value, &sec); err != nil {
			return nil, fmt.Errorf("decode settings %s: %w", rec.Key, err)
		}
		entries = append(entries, SettingsEntry{GuildID: rec.Key, Settings: sec})
	}
	return entries, nil
}

func (g *GormGateway) CleanupOldSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	entries, err := g.Sessions(ctx)
	if err != nil {
		return 0, err
	}
	var removed int64
	for _, e := range entries {
		if !e.Session.CreatedAt.Before(cutoff) {
			continue
		}
		if err := g.DeleteSession(ctx, e.Token); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
