package domain

import "time"

// SecurityConfig is the set of gate checks snapshotted into a session when
// the authorization panel is created. Settings changes never retroactively
// affect sessions already issued.
type SecurityConfig struct {
	ProxyBlock       bool `json:"proxy_block"`
	VPNBlock         bool `json:"vpn_block"`
	MobileBlock      bool `json:"mobile_block"`
	DuplicateIPBlock bool `json:"duplicate_ip_block"`
}

// Enabled reports whether any gate check is switched on.
func (c SecurityConfig) Enabled() bool {
	return c.ProxyBlock || c.VPNBlock || c.MobileBlock || c.DuplicateIPBlock
}

// Session is a pending authorization bound to its target guild, role and
// security snapshot. The token it is keyed by encodes every field except
// AnnouncementMessageID, so a callback can be resolved from the token alone
// even across a process restart.
type Session struct {
	Token                 string         `json:"-"`
	GuildID               string         `json:"guild_id"`
	RoleID                string         `json:"role_id"`
	ChannelID             string         `json:"channel_id"`
	CreatedAt             time.Time      `json:"created_at"`
	Security              SecurityConfig `json:"security"`
	AnnouncementMessageID string         `json:"announcement_message_id,omitempty"`
}

// ExpiresAt returns the instant the session stops being accepted.
func (s Session) ExpiresAt(ttl time.Duration) time.Time {
	return s.CreatedAt.Add(ttl)
}

// Expired reports whether the session is at or past its TTL.
func (s Session) Expired(now time.Time, ttl time.Duration) bool {
	return !now.Before(s.ExpiresAt(ttl))
}
