package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/mizuki-dev/guildgate/internal/domain"
)

func TestDispatchJoinReportsEveryUserInOrder(t *testing.T) {
	_, creds := newTestStores(t)
	ctx := context.Background()
	for _, id := range []string{"user-1", "user-2", "user-3"} {
		if err := creds.Upsert(ctx, id, storedCredential("g1", "1.2.3.4", nil)); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}

	membership := &fakeMembership{}
	svc := NewDispatchService(creds, &fakeRefresher{}, membership, testLogger())

	report := svc.DispatchJoin(ctx, "target-guild")
	if len(report.Outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(report.Outcomes))
	}
	for i, want := range []string{"user-1", "user-2", "user-3"} {
		if report.Outcomes[i].UserID != want {
			t.Fatalf("outcome %d: expected %s, got %s", i, want, report.Outcomes[i].UserID)
		}
		if report.Outcomes[i].Outcome != domain.OutcomeAdded {
			t.Fatalf("outcome %d: expected added, got %s", i, report.Outcomes[i].Outcome)
		}
	}
	if report.SuccessCount != 3 || report.FailCount != 0 {
		t.Fatalf("counts: success=%d fail=%d", report.SuccessCount, report.FailCount)
	}
	if report.GuildID != "target-guild" || report.ID == "" {
		t.Fatalf("report identity not filled: %+v", report)
	}
	if len(membership.added) != 3 {
		t.Fatalf("expected 3 membership calls, got %d", len(membership.added))
	}
}

func TestDispatchJoinRefreshesOnlyExpiredCredentials(t *testing.T) {
	_, creds := newTestStores(t)
	ctx := context.Background()
	if err := creds.Upsert(ctx, "expired-user", storedCredential("g1", "1.1.1.1", timePtr(time.Now().Add(-time.Hour)))); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := creds.Upsert(ctx, "fresh-user", storedCredential("g1", "2.2.2.2", timePtr(time.Now().Add(time.Hour)))); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	refresher := &fakeRefresher{}
	membership := &fakeMembership{}
	svc := NewDispatchService(creds, refresher, membership, testLogger())

	report := svc.DispatchJoin(ctx, "g1")
	if report.SuccessCount != 2 {
		t.Fatalf("expected 2 successes, got %d", report.SuccessCount)
	}
	if len(refresher.calls) != 1 || refresher.calls[0] != "expired-user" {
		t.Fatalf("expected one refresh for expired-user, got %v", refresher.calls)
	}
	// The refreshed token must reach the membership call.
	if membership.added[0].AccessToken != "refreshed-expired-user" {
		t.Fatalf("expired user dispatched with stale token %q", membership.added[0].AccessToken)
	}
	if membership.added[1].AccessToken != "access" {
		t.Fatalf("fresh user token replaced: %q", membership.added[1].AccessToken)
	}
}

func TestDispatchJoinClassifiesFailures(t *testing.T) {
	_, creds := newTestStores(t)
	ctx := context.Background()
	for _, id := range []string{"refresh-fail", "unverified", "forbidden", "offline"} {
		cred := storedCredential("g1", "1.2.3.4", nil)
		if id == "refresh-fail" {
			cred.ExpiresAt = timePtr(time.Now().Add(-time.Hour))
		}
		if err := creds.Upsert(ctx, id, cred); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}

	refresher := &fakeRefresher{refreshFn: func(ctx context.Context, userID string) (string, error) {
		return "", ErrRefreshRejected
	}}
	membership := &fakeMembership{addFn: func(ctx context.Context, guildID, userID, accessToken string) error {
		switch userID {
		case "unverified":
			return apiError(http.StatusForbidden, "You need to verified your email address")
		case "forbidden":
			return apiError(http.StatusForbidden, "Missing Permissions")
		case "offline":
			return errors.New("dial tcp: connection refused")
		}
		return nil
	}}
	svc := NewDispatchService(creds, refresher, membership, testLogger())

	report := svc.DispatchJoin(ctx, "g1")
	want := map[string]domain.Outcome{
		"refresh-fail": domain.OutcomeTokenRefreshFailed,
		"unverified":   domain.OutcomeUnverifiedEmail,
		"forbidden":    domain.OutcomeAPIError,
		"offline":      domain.OutcomeNetworkError,
	}
	if len(report.Outcomes) != len(want) {
		t.Fatalf("expected %d outcomes, got %d", len(want), len(report.Outcomes))
	}
	for _, outcome := range report.Outcomes {
		if outcome.Outcome != want[outcome.UserID] {
			t.Fatalf("user %s: expected %s, got %s", outcome.UserID, want[outcome.UserID], outcome.Outcome)
		}
		if outcome.Detail == "" {
			t.Fatalf("user %s: missing failure detail", outcome.UserID)
		}
	}
	if report.SuccessCount != 0 || report.FailCount != 4 {
		t.Fatalf("counts: success=%d fail=%d", report.SuccessCount, report.FailCount)
	}
}

func TestDispatchJoinStopsOnCancelledContext(t *testing.T) {
	_, creds := newTestStores(t)
	ctx := context.Background()
	for _, id := range []string{"user-1", "user-2", "user-3"} {
		if err := creds.Upsert(ctx, id, storedCredential("g1", "1.2.3.4", nil)); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	membership := &fakeMembership{addFn: func(ctx context.Context, guildID, userID, accessToken string) error {
		if userID == "user-1" {
			cancel()
		}
		return nil
	}}
	svc := NewDispatchService(creds, &fakeRefresher{}, membership, testLogger())

	report := svc.DispatchJoin(runCtx, "g1")
	if len(report.Outcomes) != 1 {
		t.Fatalf("expected partial report with 1 outcome, got %d", len(report.Outcomes))
	}
	if report.Outcomes[0].UserID != "user-1" {
		t.Fatalf("unexpected first outcome: %+v", report.Outcomes[0])
	}
	if report.FinishedAt.IsZero() {
		t.Fatalf("partial report missing finish time")
	}
}
