package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mizuki-dev/guildgate/internal/domain"
)

const (
	sessionsFile = "sessions.json"
	usersFile    = "users.json"
	settingsFile = "settings.json"
)

// FileGateway keeps the three collections as JSON files under a data
// directory. Each file holds an ordered array of entries, so credential
// insertion order survives a restart.
type FileGateway struct {
	mu  sync.Mutex
	dir string
}

func NewFileGateway(dir string) *FileGateway {
	return &FileGateway{dir: dir}
}

func (g *FileGateway) Name() string { return "file" }

func (g *FileGateway) SaveSession(ctx context.Context, token string, s domain.Session) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	entries, err := readEntries[SessionEntry](g.path(sessionsFile))
	if err != nil {
		return err
	}
	replaced := false
	for i := range entries {
		if entries[i].Token == token {
			entries[i].Session = s
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, SessionEntry{Token: token, Session: s})
	}
	return g.writeEntries(sessionsFile, entries)
}

func (g *FileGateway) SaveUser(ctx context.Context, userID string, c domain.Credential) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	entries, err := readEntries[UserEntry](g.path(usersFile))
	if err != nil {
		return err
	}
	replaced := false
	for i := range entries {
		if entries[i].UserID == userID {
			entries[i].Credential = c
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, UserEntry{UserID: userID, Credential: c})
	}
	return g.writeEntries(usersFile, entries)
}

func (g *FileGateway) SaveGuildSettings(ctx context.Context, guildID string, sec domain.SecurityConfig) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	entries, err := readEntries[SettingsEntry](g.path(settingsFile))
	if err != nil {
		return err
	}
	replaced := false
	for i := range entries {
		if entries[i].GuildID == guildID {
			entries[i].Settings = sec
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, SettingsEntry{GuildID: guildID, Settings: sec})
	}
	return g.writeEntries(settingsFile, entries)
}

func (g *FileGateway) DeleteSession(ctx context.Context, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	entries, err := readEntries[SessionEntry](g.path(sessionsFile))
	if err != nil {
		return err
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.Token != token {
			kept = append(kept, e)
		}
	}
	return g.writeEntries(sessionsFile, kept)
}

func (g *FileGateway) Sessions(ctx context.Context) ([]SessionEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return readEntries[SessionEntry](g.path(sessionsFile))
}

func (g *FileGateway) Users(ctx context.Context) ([]UserEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return readEntries[UserEntry](g.path(usersFile))
}

func (g *FileGateway) GuildSettings(ctx context.Context) ([]SettingsEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return readEntries[SettingsEntry](g.path(settingsFile))
}

func (g *FileGateway) CleanupOldSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	entries, err := readEntries[SessionEntry](g.path(sessionsFile))
	if err != nil {
		return 0, err
	}
	kept := entries[:0]
	var removed int64
	for _, e := range entries {
		if e.Session.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, g.writeEntries(sessionsFile, kept)
}

func (g *FileGateway) path(name string) string { return filepath.Join(g.dir, name) }

func (g *FileGateway) writeEntries(name string, v any) error {
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	tmp := g.path(name) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return os.Rename(tmp, g.path(name))
}

func readEntries[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	var entries []T
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return entries, nil
}
