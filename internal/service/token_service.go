package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/mizuki-dev/guildgate/internal/discord"
	"github.com/mizuki-dev/guildgate/internal/observability"
	"github.com/mizuki-dev/guildgate/internal/repository"
)

var (
	// ErrNoRefreshToken reports a credential that cannot be renewed.
	ErrNoRefreshToken = errors.New("no refresh token stored")
	// ErrRefreshRejected reports a refresh-grant rejection by the provider.
	// The user is unrecoverable for the current operation.
	ErrRefreshRejected = errors.New("refresh rejected")
)

// TokenService renews expired access tokens through the refresh grant and
// rewrites the stored credential on success. A failed exchange leaves the
// stored credential unchanged.
type TokenService struct {
	creds  *repository.CredentialStore
	oauth  discord.OAuthProvider
	logger *slog.Logger
	now    func() time.Time
}

func NewTokenService(creds *repository.CredentialStore, oauth discord.OAuthProvider, logger *slog.Logger) *TokenService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenService{creds: creds, oauth: oauth, logger: logger, now: time.Now}
}

// Refresh exchanges the user's refresh token for a new pair and returns the
// new access token.
func (s *TokenService) Refresh(ctx context.Context, userID string) (string, error) {
	cred, err := s.creds.Get(userID)
	if err != nil {
		return "", err
	}
	if cred.RefreshToken == "" {
		observability.RecordTokenRefresh(ctx, "no_refresh_token")
		return "", ErrNoRefreshToken
	}

	tok, err := s.oauth.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		observability.RecordTokenRefresh(ctx, "rejected")
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			s.logger.Warn("refresh grant rejected", "user_id", userID, "status", retrieveErr.Response.StatusCode)
			return "", fmt.Errorf("%w: %s", ErrRefreshRejected, retrieveErr.ErrorCode)
		}
		return "", fmt.Errorf("refresh exchange: %w", err)
	}

	refreshedAt := s.now().UTC()
	updated := *cred
	updated.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		updated.RefreshToken = tok.RefreshToken
	}
	if tok.Expiry.IsZero() {
		updated.ExpiresAt = nil
	} else {
		expiry := tok.Expiry.UTC()
		updated.ExpiresAt = &expiry
	}
	updated.RefreshedAt = &refreshedAt

	if err := s.creds.Upsert(ctx, userID, updated); err != nil {
		return "", err
	}
	observability.RecordTokenRefresh(ctx, "success")
	s.logger.Info("access token refreshed", "user_id", userID)
	return tok.AccessToken, nil
}
