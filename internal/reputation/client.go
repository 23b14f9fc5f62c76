// Package reputation looks up an IP's classification with a proxycheck-style
// provider. The lookup is advisory: callers treat any failure as an
// unresolved check, never as a denial.
package reputation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Result is the provider's verdict for one IP.
type Result struct {
	Proxy bool
	VPN   bool
	ISP   string
}

// Lookup resolves the reputation of a single IP.
type Lookup interface {
	Check(ctx context.Context, ip string) (*Result, error)
}

// Client queries a proxycheck.io-compatible endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

func NewClient(httpClient *http.Client, baseURL string, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type ipRecord struct {
	Proxy string `json:"proxy"`
	Type  string `json:"type"`
	ISP   string `json:"isp"`
}

func (c *Client) Check(ctx context.Context, ip string) (*Result, error) {
	url := fmt.Sprintf("%s/v2/%s?vpn=1&asn=1", c.baseURL, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build reputation request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reputation request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read reputation response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("reputation lookup status %d", resp.StatusCode)
	}

	// The response nests the verdict under the queried IP.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode reputation response: %w", err)
	}
	entry, ok := raw[ip]
	if !ok {
		return nil, fmt.Errorf("reputation response missing entry for %s", ip)
	}
	var rec ipRecord
	if err := json.Unmarshal(entry, &rec); err != nil {
		return nil, fmt.Errorf("decode reputation entry: %w", err)
	}

	return &Result{
		Proxy: strings.EqualFold(rec.Proxy, "yes"),
		VPN:   strings.EqualFold(rec.Type, "VPN"),
		ISP:   rec.ISP,
	}, nil
}
