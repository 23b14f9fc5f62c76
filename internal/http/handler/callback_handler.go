package handler

import (
	"errors"
	"net"
	"net/http"
	"net/url"

	"github.com/mizuki-dev/guildgate/internal/http/response"
	"github.com/mizuki-dev/guildgate/internal/observability"
	"github.com/mizuki-dev/guildgate/internal/repository"
	"github.com/mizuki-dev/guildgate/internal/security"
	"github.com/mizuki-dev/guildgate/internal/service"
)

// CallbackHandler terminates the OAuth redirect. Success and gate denials
// redirect to static pages; everything else answers a JSON envelope.
type CallbackHandler struct {
	callbacks *service.CallbackService
}

func NewCallbackHandler(callbacks *service.CallbackService) *CallbackHandler {
	return &CallbackHandler{callbacks: callbacks}
}

func (h *CallbackHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		response.Error(w, r, http.StatusBadRequest, "INVALID_REQUEST", "authorization code and session are required", nil)
		return
	}

	result, err := h.callbacks.HandleCallback(r.Context(), code, state, requestIP(r))
	if err != nil {
		switch {
		case errors.Is(err, security.ErrInvalidSessionToken), errors.Is(err, repository.ErrSessionNotFound):
			response.Error(w, r, http.StatusBadRequest, "INVALID_SESSION", "invalid or expired session", nil)
		case errors.Is(err, service.ErrTokenExchangeFailed):
			response.Error(w, r, http.StatusInternalServerError, "TOKEN_EXCHANGE_FAILED", "failed to exchange authorization code", nil)
		case errors.Is(err, service.ErrIdentityFetchFailed):
			response.Error(w, r, http.StatusInternalServerError, "IDENTITY_FETCH_FAILED", "failed to fetch user identity", nil)
		default:
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
		}
		return
	}

	if result.Denied {
		observability.Audit(r, "authorization_blocked", "reason", string(result.Reason))
		http.Redirect(w, r, "/blocked.html?reason="+url.QueryEscape(string(result.Reason)), http.StatusFound)
		return
	}
	http.Redirect(w, r, "/success.html?user="+url.QueryEscape(result.Username), http.StatusFound)
}

// requestIP trusts RemoteAddr, which chi's RealIP middleware has already
// rewritten from X-Forwarded-For/X-Real-Ip when present. An unparseable
// address yields "" and skips every IP-based gate check.
func requestIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if ip := net.ParseIP(r.RemoteAddr); ip != nil {
			return ip.String()
		}
		return ""
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return ""
}
