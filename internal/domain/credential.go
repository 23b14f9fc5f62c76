package domain

import "time"

// Credential is the stored OAuth token pair for one end user, keyed by the
// user's Discord id. A second authorization for the same user overwrites the
// first. Credentials are never deleted automatically.
type Credential struct {
	AccessToken     string     `json:"access_token"`
	RefreshToken    string     `json:"refresh_token,omitempty"`
	SessionToken    string     `json:"session_token"`
	GuildID         string     `json:"guild_id"`
	SourceIP        string     `json:"source_ip,omitempty"`
	AuthenticatedAt time.Time  `json:"authenticated_at"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	RefreshedAt     *time.Time `json:"refreshed_at,omitempty"`
}

// ExpiredAt reports whether the access token is past its granted lifetime.
// A credential without ExpiresAt is treated as non-expiring until a call
// against it fails.
func (c Credential) ExpiredAt(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}
