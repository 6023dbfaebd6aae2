package auth

import (
	"net/http"
	"strings"

	"github.com/tradeguard/backend-quotes/internal/common"
)

// Middleware wires agent authentication into HTTP handlers.
type Middleware struct {
	Store KeyStore
}

// RequireAgentKey enforces a valid agent API key before executing the next
// handler. The credential is read from X-API-Key or a bearer Authorization
// header.
func (m Middleware) RequireAgentKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := extractKey(r)
		if raw == "" {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing api key", nil)
			return
		}
		keyID, err := VerifyKey(r.Context(), m.Store, raw)
		if err != nil {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid api key", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithAgentKeyID(r.Context(), keyID)))
	})
}

func extractKey(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-API-Key")); v != "" {
		return v
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
