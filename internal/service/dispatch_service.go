package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mizuki-dev/guildgate/internal/discord"
	"github.com/mizuki-dev/guildgate/internal/domain"
	"github.com/mizuki-dev/guildgate/internal/observability"
	"github.com/mizuki-dev/guildgate/internal/repository"
)

// TokenRefresher renews one user's access token. Implemented by
// TokenService; faked in tests.
type TokenRefresher interface {
	Refresh(ctx context.Context, userID string) (string, error)
}

// DispatchService joins every stored credential into a target guild, one
// user at a time. Membership calls are rate-limited upstream, so the
// sequential pacing is a correctness requirement, not an optimization.
type DispatchService struct {
	creds      *repository.CredentialStore
	tokens     TokenRefresher
	membership discord.MembershipClient
	logger     *slog.Logger
	now        func() time.Time
}

func NewDispatchService(creds *repository.CredentialStore, tokens TokenRefresher, membership discord.MembershipClient, logger *slog.Logger) *DispatchService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DispatchService{
		creds:      creds,
		tokens:     tokens,
		membership: membership,
		logger:     logger,
		now:        time.Now,
	}
}

// DispatchJoin attempts to add every authorized user to targetGuildID and
// returns the full per-user report. A single user's failure never aborts the
// pass; only ctx cancellation stops iteration early, in which case the
// report covers the entries processed so far.
func (s *DispatchService) DispatchJoin(ctx context.Context, targetGuildID string) *domain.DispatchReport {
	report := &domain.DispatchReport{
		ID:        uuid.NewString(),
		GuildID:   targetGuildID,
		StartedAt: s.now().UTC(),
	}

	for _, entry := range s.creds.AllEntries() {
		if ctx.Err() != nil {
			s.logger.Warn("dispatch cancelled", "report_id", report.ID, "processed", len(report.Outcomes))
			break
		}
		outcome := s.dispatchOne(ctx, targetGuildID, entry)
		report.Outcomes = append(report.Outcomes, outcome)
		if outcome.Outcome == domain.OutcomeAdded {
			report.SuccessCount++
		} else {
			report.FailCount++
		}
		observability.RecordDispatchOutcome(ctx, string(outcome.Outcome))
	}

	report.FinishedAt = s.now().UTC()
	s.logger.Info("dispatch finished",
		"report_id", report.ID,
		"guild_id", targetGuildID,
		"success", report.SuccessCount,
		"fail", report.FailCount,
	)
	return report
}

func (s *DispatchService) dispatchOne(ctx context.Context, targetGuildID string, entry repository.CredentialEntry) domain.UserOutcome {
	accessToken := entry.Credential.AccessToken
	if entry.Credential.ExpiredAt(s.now()) {
		refreshed, err := s.tokens.Refresh(ctx, entry.UserID)
		if err != nil {
			s.logger.Warn("token refresh failed", "user_id", entry.UserID, "error", err)
			return domain.UserOutcome{
				UserID:  entry.UserID,
				Outcome: domain.OutcomeTokenRefreshFailed,
				Detail:  err.Error(),
			}
		}
		accessToken = refreshed
	}

	err := s.membership.AddGuildMember(ctx, targetGuildID, entry.UserID, accessToken)
	if err == nil {
		return domain.UserOutcome{UserID: entry.UserID, Outcome: domain.OutcomeAdded}
	}

	var apiErr *discord.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Unverified() {
			return domain.UserOutcome{
				UserID:  entry.UserID,
				Outcome: domain.OutcomeUnverifiedEmail,
				Detail:  apiErr.Message,
			}
		}
		s.logger.Warn("membership call rejected", "user_id", entry.UserID, "status", apiErr.Status, "message", apiErr.Message)
		return domain.UserOutcome{
			UserID:  entry.UserID,
			Outcome: domain.OutcomeAPIError,
			Detail:  apiErr.Message,
		}
	}

	s.logger.Warn("membership call failed", "user_id", entry.UserID, "error", err)
	return domain.UserOutcome{
		UserID:  entry.UserID,
		Outcome: domain.OutcomeNetworkError,
		Detail:  err.Error(),
	}
}
