package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mizuki-dev/guildgate/internal/discord"
	"github.com/mizuki-dev/guildgate/internal/domain"
	"github.com/mizuki-dev/guildgate/internal/observability"
	"github.com/mizuki-dev/guildgate/internal/repository"
)

var (
	// ErrTokenExchangeFailed reports a failed authorization-code exchange.
	// The session stays intact; the user may retry the original link.
	ErrTokenExchangeFailed = errors.New("token exchange failed")
	// ErrIdentityFetchFailed reports a failed current-user lookup.
	ErrIdentityFetchFailed = errors.New("identity fetch failed")
)

// GrantRequest is the payload handed to the membership collaborator after a
// successful authorization.
type GrantRequest struct {
	UserID       string
	SessionToken string
	GuildID      string
	RoleID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	SourceIP     string
}

// RoleGranter joins the user into the guild and grants the configured role.
// The core only needs an acknowledgement; a grant failure is logged, never
// surfaced to the authorizing user.
type RoleGranter interface {
	Grant(ctx context.Context, req GrantRequest) error
}

// CallbackResult tells the HTTP layer where to send the user.
type CallbackResult struct {
	Username string
	Denied   bool
	Reason   DenyReason
}

// CallbackService runs the single-user authorization path: code exchange,
// identity fetch, session lookup, gate evaluation, credential upsert and the
// role-grant handoff.
type CallbackService struct {
	oauth    discord.OAuthProvider
	identity discord.IdentityClient
	sessions *repository.SessionStore
	creds    *repository.CredentialStore
	gate     *Gate
	granter  RoleGranter
	logger   *slog.Logger
	now      func() time.Time
}

func NewCallbackService(
	oauth discord.OAuthProvider,
	identity discord.IdentityClient,
	sessions *repository.SessionStore,
	creds *repository.CredentialStore,
	gate *Gate,
	granter RoleGranter,
	logger *slog.Logger,
) *CallbackService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CallbackService{
		oauth:    oauth,
		identity: identity,
		sessions: sessions,
		creds:    creds,
		gate:     gate,
		granter:  granter,
		logger:   logger,
		now:      time.Now,
	}
}

// HandleCallback processes the OAuth redirect. Errors are terminal for this
// attempt only; a denial carries the reason code for user-facing messaging
// and writes no credential.
func (s *CallbackService) HandleCallback(ctx context.Context, code, sessionToken, requestIP string) (*CallbackResult, error) {
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		observability.RecordCallback(ctx, "exchange_failed")
		return nil, fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}

	user, err := s.identity.FetchCurrentUser(ctx, tok.AccessToken)
	if err != nil {
		observability.RecordCallback(ctx, "identity_failed")
		return nil, fmt.Errorf("%w: %v", ErrIdentityFetchFailed, err)
	}

	session, err := s.sessions.Resolve(ctx, sessionToken)
	if err != nil {
		observability.RecordCallback(ctx, "session_not_found")
		return nil, err
	}

	decision := s.gate.Evaluate(ctx, session.Security, session.GuildID, requestIP, s.creds.AllEntries())
	if !decision.Allowed {
		observability.RecordCallback(ctx, "denied")
		observability.RecordGateDenial(ctx, string(decision.Reason))
		s.logger.Info("authorization blocked",
			"user_id", user.ID,
			"guild_id", session.GuildID,
			"reason", decision.Reason,
		)
		return &CallbackResult{Denied: true, Reason: decision.Reason}, nil
	}

	now := s.now().UTC()
	cred := domain.Credential{
		AccessToken:     tok.AccessToken,
		RefreshToken:    tok.RefreshToken,
		SessionToken:    sessionToken,
		GuildID:         session.GuildID,
		SourceIP:        requestIP,
		AuthenticatedAt: now,
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry.UTC()
		cred.ExpiresAt = &expiry
	}
	if err := s.creds.Upsert(ctx, user.ID, cred); err != nil {
		observability.RecordCallback(ctx, "store_failed")
		return nil, err
	}

	if s.granter != nil {
		grant := GrantRequest{
			UserID:       user.ID,
			SessionToken: sessionToken,
			GuildID:      session.GuildID,
			RoleID:       session.RoleID,
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
			ExpiresAt:    cred.ExpiresAt,
			SourceIP:     requestIP,
		}
		if err := s.granter.Grant(ctx, grant); err != nil {
			// Advisory: the credential is stored and the user authorized;
			// membership can be replayed with a bulk dispatch.
			s.logger.Warn("role grant handoff failed", "user_id", user.ID, "guild_id", session.GuildID, "error", err)
		}
	}

	observability.RecordCallback(ctx, "success")
	s.logger.Info("authorization completed", "user_id", user.ID, "guild_id", session.GuildID)
	return &CallbackResult{Username: user.Username}, nil
}

// MembershipGranter implements RoleGranter on the Discord REST client.
type MembershipGranter struct {
	membership discord.MembershipClient
}

func NewMembershipGranter(membership discord.MembershipClient) *MembershipGranter {
	return &MembershipGranter{membership: membership}
}

func (g *MembershipGranter) Grant(ctx context.Context, req GrantRequest) error {
	if err := g.membership.AddGuildMember(ctx, req.GuildID, req.UserID, req.AccessToken); err != nil {
		return fmt.Errorf("add guild member: %w", err)
	}
	if req.RoleID == "" {
		return nil
	}
	if err := g.membership.AddMemberRole(ctx, req.GuildID, req.UserID, req.RoleID); err != nil {
		return fmt.Errorf("add member role: %w", err)
	}
	return nil
}
