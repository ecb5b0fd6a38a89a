package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/rivio/ranking-server/internal/token"
)

type contextKey string

const userIDKey contextKey = "auth.user_id"

// userID returns the authenticated user id, empty when unauthenticated.
func userID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// requireAuth validates the bearer access token and stores the caller's
// user id on the request context.
func requireAuth(tokens *token.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
				return
			}
			claims, err := tokens.ParseAccess(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthenticated", "invalid access token")
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// securityHeaders sets the browser hardening headers on every response.
// HSTS is added only outside dev so local plain-HTTP testing keeps working.
func securityHeaders(dev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			h.Set("Content-Security-Policy", "frame-ancestors 'none'; base-uri 'self'")
			if !dev {
				h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// trustedHost rejects requests whose Host header is not in the allow
// list. An empty list disables the check (dev).
func trustedHost(hosts []string) func(http.Handler) http.Handler {
	allowed := map[string]bool{}
	for _, h := range hosts {
		allowed[strings.ToLower(h)] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(allowed) > 0 {
				host := strings.ToLower(r.Host)
				if i := strings.LastIndex(host, ":"); i > 0 {
					host = host[:i]
				}
				if !allowed[host] {
					writeError(w, http.StatusBadRequest, "validation_error", "invalid host header")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
