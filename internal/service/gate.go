package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mizuki-dev/guildgate/internal/domain"
	"github.com/mizuki-dev/guildgate/internal/repository"
	"github.com/mizuki-dev/guildgate/internal/reputation"
)

// DenyReason is the reason code surfaced to the end user when the gate
// blocks an authorization.
type DenyReason string

const (
	ReasonDuplicateIP DenyReason = "duplicate_ip"
	ReasonProxy       DenyReason = "proxy"
	ReasonVPN         DenyReason = "vpn"
	ReasonMobile      DenyReason = "mobile"
)

// GateDecision is the outcome of one gate evaluation.
type GateDecision struct {
	Allowed bool
	Reason  DenyReason
}

var allow = GateDecision{Allowed: true}

func deny(reason DenyReason) GateDecision { return GateDecision{Reason: reason} }

// mobileCarriers are matched case-insensitively against the ISP name
// reported for the requester's IP.
var mobileCarriers = []string{"docomo", "au", "softbank", "rakuten", "kddi", "ntt", "willcom", "emobile"}

// Gate evaluates a session's security snapshot against the requester's IP.
// Checks run in fixed order and the first applicable deny wins:
// duplicate_ip, then proxy, then vpn, then mobile. A failed reputation
// lookup skips the lookup-based checks (fail-open); duplicate-IP is purely
// local and is always enforced.
type Gate struct {
	lookup reputation.Lookup
	logger *slog.Logger
}

func NewGate(lookup reputation.Lookup, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{lookup: lookup, logger: logger}
}

// Evaluate decides whether an authorization from requestIP may proceed.
// guildID scopes the duplicate-IP check to credentials issued for the same
// target community. An unknown IP skips every check and allows.
func (g *Gate) Evaluate(ctx context.Context, sec domain.SecurityConfig, guildID, requestIP string, existing []repository.CredentialEntry) GateDecision {
	if !sec.Enabled() || requestIP == "" {
		return allow
	}

	if sec.DuplicateIPBlock {
		for _, e := range existing {
			if e.Credential.GuildID == guildID && e.Credential.SourceIP == requestIP {
				return deny(ReasonDuplicateIP)
			}
		}
	}

	if !sec.ProxyBlock && !sec.VPNBlock && !sec.MobileBlock {
		return allow
	}

	result, err := g.lookup.Check(ctx, requestIP)
	if err != nil {
		g.logger.Warn("reputation lookup failed, skipping ip checks", "ip", requestIP, "error", err)
		return allow
	}

	if sec.ProxyBlock && result.Proxy {
		return deny(ReasonProxy)
	}
	if sec.VPNBlock && result.VPN {
		return deny(ReasonVPN)
	}
	if sec.MobileBlock && result.ISP != "" {
		isp := strings.ToLower(result.ISP)
		for _, carrier := range mobileCarriers {
			if strings.Contains(isp, carrier) {
				return deny(ReasonMobile)
			}
		}
	}
	return allow
}
