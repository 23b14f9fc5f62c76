package repository

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mizuki-dev/guildgate/internal/domain"
	"github.com/mizuki-dev/guildgate/internal/observability"
	"github.com/mizuki-dev/guildgate/internal/persistence"
)

var (
	// ErrCredentialNotFound reports a lookup for a user with no stored
	// credential.
	ErrCredentialNotFound = errors.New("credential not found")
	// ErrMissingAccessToken rejects an upsert without an access token.
	ErrMissingAccessToken = errors.New("credential missing access token")
)

// CredentialEntry pairs a user id with their stored credential.
type CredentialEntry struct {
	UserID     string
	Credential domain.Credential
}

// CredentialStore holds one credential per user in insertion order. An
// upsert for a known user overwrites the credential in place, keeping the
// user's original position.
type CredentialStore struct {
	mu      sync.Mutex
	entries []CredentialEntry
	index   map[string]int

	gateway persistence.Gateway
	logger  *slog.Logger
}

func NewCredentialStore(gateway persistence.Gateway, logger *slog.Logger) *CredentialStore {
	if gateway == nil {
		gateway = persistence.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialStore{
		index:   make(map[string]int),
		gateway: gateway,
		logger:  logger,
	}
}

// Upsert stores c for userID, overwriting any prior record.
func (s *CredentialStore) Upsert(ctx context.Context, userID string, c domain.Credential) error {
	if c.AccessToken == "" {
		return ErrMissingAccessToken
	}

	s.mu.Lock()
	if i, ok := s.index[userID]; ok {
		s.entries[i].Credential = c
	} else {
		s.index[userID] = len(s.entries)
		s.entries = append(s.entries, CredentialEntry{UserID: userID, Credential: c})
	}
	s.mu.Unlock()

	if err := s.gateway.SaveUser(ctx, userID, c); err != nil {
		observability.RecordPersistenceOperation(ctx, s.gateway.Name(), "save_user", "error")
		s.logger.Warn("credential write-through failed", "user_id", userID, "error", err)
	} else {
		observability.RecordPersistenceOperation(ctx, s.gateway.Name(), "save_user", "success")
	}
	return nil
}

// Get returns the stored credential for userID.
func (s *CredentialStore) Get(userID string) (*domain.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[userID]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	cp := s.entries[i].Credential
	return &cp, nil
}

// Expired reports whether the user's access token is past its lifetime at
// now. Unknown users and credentials without an expiry report false.
func (s *CredentialStore) Expired(userID string, now time.Time) bool {
	c, err := s.Get(userID)
	if err != nil {
		return false
	}
	return c.ExpiredAt(now)
}

// AllEntries returns every credential in insertion order.
func (s *CredentialStore) AllEntries() []CredentialEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CredentialEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *CredentialStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Restore inserts an entry loaded from durable storage without writing back.
func (s *CredentialStore) Restore(userID string, c domain.Credential) {
	if c.AccessToken == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.index[userID]; ok {
		s.entries[i].Credential = c
		return
	}
	s.index[userID] = len(s.entries)
	s.entries = append(s.entries, CredentialEntry{UserID: userID, Credential: c})
}
