package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// User is the subset of the Discord identity payload the core needs.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// APIError is a non-success response from the Discord REST API.
type APIError struct {
	Status  int    `json:"status"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discord api: status=%d code=%d message=%q", e.Status, e.Code, e.Message)
}

// Unverified reports the permission rejection Discord returns for accounts
// without a verified email, which callers surface as a distinct outcome.
func (e *APIError) Unverified() bool {
	return e.Status == http.StatusForbidden && strings.Contains(strings.ToLower(e.Message), "verified")
}

// IdentityClient fetches the authenticated user's stable identifier.
type IdentityClient interface {
	FetchCurrentUser(ctx context.Context, accessToken string) (*User, error)
}

// MembershipClient performs the privileged guild mutations, authenticated
// with the bot token rather than the end-user's OAuth token.
type MembershipClient interface {
	AddGuildMember(ctx context.Context, guildID, userID, accessToken string) error
	AddMemberRole(ctx context.Context, guildID, userID, roleID string) error
}

// Client talks to the Discord REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	botToken   string
}

func NewClient(httpClient *http.Client, apiBaseURL, botToken string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(apiBaseURL, "/") + "/api/v10",
		botToken:   botToken,
	}
}

// FetchCurrentUser resolves the identity behind an OAuth access token.
func (c *Client) FetchCurrentUser(ctx context.Context, accessToken string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users/@me", nil)
	if err != nil {
		return nil, fmt.Errorf("build identity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read identity response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, apiErrorFrom(resp.StatusCode, body)
	}

	var u User
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("decode identity response: %w", err)
	}
	if u.ID == "" {
		return nil, errors.New("identity response missing user id")
	}
	return &u, nil
}

// AddGuildMember joins the user into the guild using their OAuth access
// token. Discord answers 201 for a new member and 204 when the user is
// already a member; both are success.
func (c *Client) AddGuildMember(ctx context.Context, guildID, userID, accessToken string) error {
	payload, err := json.Marshal(map[string]string{"access_token": accessToken})
	if err != nil {
		return fmt.Errorf("marshal member payload: %w", err)
	}
	url := fmt.Sprintf("%s/guilds/%s/members/%s", c.baseURL, guildID, userID)
	return c.botPut(ctx, url, payload)
}

// AddMemberRole grants the role to a guild member.
func (c *Client) AddMemberRole(ctx context.Context, guildID, userID, roleID string) error {
	url := fmt.Sprintf("%s/guilds/%s/members/%s/roles/%s", c.baseURL, guildID, userID, roleID)
	return c.botPut(ctx, url, nil)
}

func (c *Client) botPut(ctx context.Context, url string, payload []byte) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.botToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discord request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read error response: %w", err)
	}
	return apiErrorFrom(resp.StatusCode, raw)
}

func apiErrorFrom(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	apiErr.Status = status
	return apiErr
}
