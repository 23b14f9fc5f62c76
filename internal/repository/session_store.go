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
	"github.com/mizuki-dev/guildgate/internal/security"
)

// ErrSessionNotFound reports a lookup for an unknown or expired session.
// Terminal for the authorization attempt; never retried.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore holds pending authorization sessions keyed by their encoded
// token. Each created session carries exactly one scheduled deletion at TTL;
// explicit deletion cancels it and firing after an explicit delete is a
// no-op.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
	timers   map[string]*time.Timer

	codec   *security.StateTokenCodec
	gateway persistence.Gateway
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// CreateSessionParams are the fields encoded into a new session token.
type CreateSessionParams struct {
	GuildID   string
	RoleID    string
	ChannelID string
	Security  domain.SecurityConfig
}

func NewSessionStore(codec *security.StateTokenCodec, gateway persistence.Gateway, ttl time.Duration, logger *slog.Logger) *SessionStore {
	if gateway == nil {
		gateway = persistence.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{
		sessions: make(map[string]domain.Session),
		timers:   make(map[string]*time.Timer),
		codec:    codec,
		gateway:  gateway,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// Create encodes params into the session token, inserts the session and arms
// its deletion timer. Encoding is deterministic, so the token is derived
// solely from the params and the creation instant.
func (s *SessionStore) Create(ctx context.Context, params CreateSessionParams) (string, error) {
	createdAt := s.now().UTC().Truncate(time.Second)
	token, err := s.codec.Encode(params.GuildID, params.RoleID, params.ChannelID, params.Security, createdAt)
	if err != nil {
		return "", err
	}

	session := domain.Session{
		Token:     token,
		GuildID:   params.GuildID,
		RoleID:    params.RoleID,
		ChannelID: params.ChannelID,
		CreatedAt: createdAt,
		Security:  params.Security,
	}

	s.mu.Lock()
	s.sessions[token] = session
	s.armLocked(token, s.ttl)
	s.mu.Unlock()

	s.writeThrough(ctx, token, session)
	return token, nil
}

// Get returns the session for token, failing with ErrSessionNotFound for
// unknown tokens and for sessions at or past the TTL.
func (s *SessionStore) Get(token string) (*domain.Session, error) {
	s.mu.Lock()
	session, ok := s.sessions[token]
	s.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if session.Expired(s.now(), s.ttl) {
		s.Delete(context.Background(), token)
		return nil, ErrSessionNotFound
	}
	cp := session
	return &cp, nil
}

// Decode recovers session fields from a token without a store lookup.
func (s *SessionStore) Decode(token string) (*domain.Session, error) {
	return s.codec.Decode(token)
}

// Resolve returns the session for token, falling back to decoding the
// self-describing token when no in-memory entry exists. A decoded session
// still within the TTL is re-admitted with its remaining lifetime, so a
// callback can complete even when the original write-through was lost.
func (s *SessionStore) Resolve(ctx context.Context, token string) (*domain.Session, error) {
	if session, err := s.Get(token); err == nil {
		return session, nil
	}

	session, err := s.Decode(token)
	if err != nil {
		return nil, err
	}
	if !s.Restore(*session) {
		return nil, ErrSessionNotFound
	}
	s.writeThrough(ctx, token, *session)

	cp := *session
	return &cp, nil
}

// AttachAnnouncement records the posted panel message id. No-op when the
// session has already expired or been deleted.
func (s *SessionStore) AttachAnnouncement(ctx context.Context, token, messageID string) {
	s.mu.Lock()
	session, ok := s.sessions[token]
	if !ok {
		s.mu.Unlock()
		return
	}
	session.AnnouncementMessageID = messageID
	s.sessions[token] = session
	s.mu.Unlock()

	s.writeThrough(ctx, token, session)
}

// Delete removes the session and cancels its scheduled deletion. Idempotent.
func (s *SessionStore) Delete(ctx context.Context, token string) {
	s.mu.Lock()
	_, existed := s.sessions[token]
	delete(s.sessions, token)
	if t, ok := s.timers[token]; ok {
		t.Stop()
		delete(s.timers, token)
	}
	s.mu.Unlock()

	if !existed {
		return
	}
	if err := s.gateway.DeleteSession(ctx, token); err != nil {
		observability.RecordPersistenceOperation(ctx, s.gateway.Name(), "delete_session", "error")
		s.logger.Warn("session delete write-through failed", "error", err)
		return
	}
	observability.RecordPersistenceOperation(ctx, s.gateway.Name(), "delete_session", "success")
}

// Restore re-inserts a session loaded from durable storage and re-arms its
// deletion timer for the remaining TTL. Sessions already past the TTL are
// discarded.
func (s *SessionStore) Restore(session domain.Session) bool {
	now := s.now()
	if session.Expired(now, s.ttl) {
		return false
	}
	s.mu.Lock()
	s.sessions[session.Token] = session
	s.armLocked(session.Token, session.ExpiresAt(s.ttl).Sub(now))
	s.mu.Unlock()
	return true
}

// Sweep drops every expired session still held in memory.
func (s *SessionStore) Sweep(ctx context.Context) int {
	now := s.now()
	s.mu.Lock()
	var stale []string
	for token, session := range s.sessions {
		if session.Expired(now, s.ttl) {
			stale = append(stale, token)
		}
	}
	s.mu.Unlock()

	for _, token := range stale {
		s.Delete(ctx, token)
	}
	return len(stale)
}

// All returns a snapshot of every live session.
func (s *SessionStore) All() []domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	return out
}

func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *SessionStore) armLocked(token string, d time.Duration) {
	if t, ok := s.timers[token]; ok {
		t.Stop()
	}
	s.timers[token] = time.AfterFunc(d, func() {
		s.Delete(context.Background(), token)
	})
}

func (s *SessionStore) writeThrough(ctx context.Context, token string, session domain.Session) {
	if err := s.gateway.SaveSession(ctx, token, session); err != nil {
		observability.RecordPersistenceOperation(ctx, s.gateway.Name(), "save_session", "error")
		s.logger.Warn("session write-through failed", "error", err)
		return
	}
	observability.RecordPersistenceOperation(ctx, s.gateway.Name(), "save_session", "success")
}
