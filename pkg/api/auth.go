// Static bearer-token guard for the status surface.
//
// When api.token is non-empty in config, requests must carry one of:
//
//	Authorization: Bearer <token>
//	X-API-Key: <token>
//	?token=<token>   (WebSocket upgrades, where headers are awkward)
//
// GET /api/health stays open for liveness probes. An empty token leaves the
// surface unauthenticated, which is fine for the localhost-only default.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sipeed/ircclaw/pkg/logger"
)

const componentAuth = "api.auth"

// authMiddleware wraps next with bearer-token checking. An empty token is a
// pass-through.
func authMiddleware(token string, next http.Handler) http.Handler {
	if token == "" {
		logger.WarnC(componentAuth, "status API runs without auth, set api.token to protect it")
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if !tokenValid(extractToken(r), token) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="ircclaw"`)
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "unauthorized, bearer token required",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractToken pulls the token from the Authorization header, the X-API-Key
// header, or the token query parameter, in that order.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(after)
		}
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}
	return r.URL.Query().Get("token")
}

// tokenValid compares in constant time.
func tokenValid(provided, expected string) bool {
	if provided == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

func isPublicPath(path string) bool {
	return path == "/api/health"
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.ErrorCF(componentAuth, "response encode failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
