package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/mizuki-dev/guildgate/internal/discord"
	"github.com/mizuki-dev/guildgate/internal/domain"
	"github.com/mizuki-dev/guildgate/internal/repository"
	"github.com/mizuki-dev/guildgate/internal/reputation"
	"github.com/mizuki-dev/guildgate/internal/security"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStores(t interface {
	Helper()
	Fatalf(format string, args ...any)
}) (*repository.SessionStore, *repository.CredentialStore) {
	t.Helper()
	codec, err := security.NewStateTokenCodec("test-client-secret")
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	sessions := repository.NewSessionStore(codec, nil, 24*time.Hour, testLogger())
	creds := repository.NewCredentialStore(nil, testLogger())
	return sessions, creds
}

type fakeOAuthProvider struct {
	exchangeFn func(ctx context.Context, code string) (*oauth2.Token, error)
	refreshFn  func(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

func (p fakeOAuthProvider) AuthCodeURL(state string) string {
	return "https://discord.example/oauth2/authorize?state=" + state
}

func (p fakeOAuthProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if p.exchangeFn != nil {
		return p.exchangeFn(ctx, code)
	}
	return &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", Expiry: time.Now().Add(time.Hour)}, nil
}

func (p fakeOAuthProvider) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if p.refreshFn != nil {
		return p.refreshFn(ctx, refreshToken)
	}
	return &oauth2.Token{AccessToken: "refreshed", RefreshToken: "refresh-2", Expiry: time.Now().Add(time.Hour)}, nil
}

type fakeIdentity struct {
	userFn func(ctx context.Context, accessToken string) (*discord.User, error)
}

func (c fakeIdentity) FetchCurrentUser(ctx context.Context, accessToken string) (*discord.User, error) {
	if c.userFn != nil {
		return c.userFn(ctx, accessToken)
	}
	return &discord.User{ID: "user-1", Username: "tester"}, nil
}

type memberCall struct {
	GuildID     string
	UserID      string
	AccessToken string
}

type fakeMembership struct {
	addFn   func(ctx context.Context, guildID, userID, accessToken string) error
	roleFn  func(ctx context.Context, guildID, userID, roleID string) error
	added   []memberCall
	roles   []string
	failAll error
}

func (m *fakeMembership) AddGuildMember(ctx context.Context, guildID, userID, accessToken string) error {
	m.added = append(m.added, memberCall{GuildID: guildID, UserID: userID, AccessToken: accessToken})
	if m.addFn != nil {
		return m.addFn(ctx, guildID, userID, accessToken)
	}
	return m.failAll
}

func (m *fakeMembership) AddMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	m.roles = append(m.roles, roleID)
	if m.roleFn != nil {
		return m.roleFn(ctx, guildID, userID, roleID)
	}
	return nil
}

type fakeLookup struct {
	result *reputation.Result
	err    error
	calls  int
}

func (l *fakeLookup) Check(ctx context.Context, ip string) (*reputation.Result, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	if l.result != nil {
		return l.result, nil
	}
	return &reputation.Result{}, nil
}

type fakeGranter struct {
	grants []GrantRequest
	err    error
}

func (g *fakeGranter) Grant(ctx context.Context, req GrantRequest) error {
	g.grants = append(g.grants, req)
	return g.err
}

type fakeRefresher struct {
	refreshFn func(ctx context.Context, userID string) (string, error)
	calls     []string
}

func (f *fakeRefresher) Refresh(ctx context.Context, userID string) (string, error) {
	f.calls = append(f.calls, userID)
	if f.refreshFn != nil {
		return f.refreshFn(ctx, userID)
	}
	return "refreshed-" + userID, nil
}

func storedCredential(guildID, ip string, expiresAt *time.Time) domain.Credential {
	return domain.Credential{
		AccessToken:     "access",
		RefreshToken:    "refresh",
		SessionToken:    "session",
		GuildID:         guildID,
		SourceIP:        ip,
		AuthenticatedAt: time.Now().Add(-time.Hour),
		ExpiresAt:       expiresAt,
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func apiError(status int, message string) *discord.APIError {
	return &discord.APIError{Status: status, Message: message}
}
