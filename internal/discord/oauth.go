package discord

import (
	"context"

	"golang.org/x/oauth2"
)

// OAuthProvider abstracts the Discord OAuth grants the core needs: the
// authorization URL, the code exchange and the refresh grant.
type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// OAuthConfig is the x/oauth2-backed provider for Discord.
type OAuthConfig struct {
	cfg oauth2.Config
}

func NewOAuthConfig(clientID, clientSecret, redirectURL, apiBaseURL string) *OAuthConfig {
	return &OAuthConfig{cfg: oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"identify", "guilds.join"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  apiBaseURL + "/oauth2/authorize",
			TokenURL: apiBaseURL + "/api/oauth2/token",
		},
	}}
}

func (c *OAuthConfig) AuthCodeURL(state string) string {
	return c.cfg.AuthCodeURL(state)
}

func (c *OAuthConfig) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return c.cfg.Exchange(ctx, code)
}

// Refresh performs a refresh-token grant and returns the renewed token pair.
func (c *OAuthConfig) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := c.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	return src.Token()
}
