package proxy

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// authExempt lists paths served without a master key: health probes,
// metrics scrapes, and CORS preflights (handled before auth).
func authExempt(r *http.Request) bool {
	if r.Method == http.MethodOptions {
		return true
	}
	path := normalizePath(r.URL.Path)
	return path == "/health" || path == "/metrics"
}

// AuthGate enforces the master key on inbound requests. MasterKey is read
// per request so a config reload takes effect immediately.
type AuthGate struct {
	IgnoreAuth bool
	MasterKey  func() string
}

// Middleware rejects unauthenticated requests. With no key configured,
// local mode (IgnoreAuth) lets everything through; worker mode refuses to
// serve rather than run open.
func (g *AuthGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authExempt(r) {
			next.ServeHTTP(w, r)
			return
		}

		key := g.MasterKey()
		if key == "" {
			if g.IgnoreAuth {
				next.ServeHTTP(w, r)
				return
			}
			writeUnauthorized(w)
			return
		}

		token := extractToken(r)
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(key)) != 1 {
			writeUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractToken pulls the client credential: x-api-key first, then the
// Authorization header with or without the Bearer prefix.
func extractToken(r *http.Request) string {
	if key := r.Header.Get("x-api-key"); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return token
	}
	return auth
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"Unauthorized"}` + "\n"))
}
