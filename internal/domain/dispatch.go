package domain

import "time"

// Outcome classifies the result of one membership attempt during a bulk
// dispatch pass.
type Outcome string

const (
	OutcomeAdded              Outcome = "added"
	OutcomeTokenRefreshFailed Outcome = "token_refresh_failed"
	OutcomeUnverifiedEmail    Outcome = "unverified_email"
	OutcomeAPIError           Outcome = "api_error"
	OutcomeNetworkError       Outcome = "network_error"
)

// UserOutcome is one entry of a dispatch report, in iteration order.
type UserOutcome struct {
	UserID  string  `json:"user_id"`
	Outcome Outcome `json:"outcome"`
	Detail  string  `json:"detail,omitempty"`
}

// DispatchReport aggregates a full bulk-join pass. Outcomes holds one entry
// per credential processed; when the pass was cancelled it holds only the
// entries processed before cancellation.
type DispatchReport struct {
	ID           string        `json:"id"`
	GuildID      string        `json:"guild_id"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	SuccessCount int           `json:"success_count"`
	FailCount    int           `json:"fail_count"`
	Outcomes     []UserOutcome `json:"outcomes"`
}
