package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/mizuki-dev/guildgate/internal/http/response"
	"github.com/mizuki-dev/guildgate/internal/observability"
)

// OperatorAuth guards the operator API with a static bearer token. The
// token is distinct from any end-user OAuth credential.
func OperatorAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				response.Error(w, r, http.StatusServiceUnavailable, "OPERATOR_API_DISABLED", "operator token not configured", nil)
				return
			}
			auth := r.Header.Get("Authorization")
			var presented string
			if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				presented = strings.TrimSpace(auth[7:])
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				observability.Audit(r, "operator_auth_rejected")
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid operator token", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
