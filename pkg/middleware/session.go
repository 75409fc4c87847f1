package middleware

import (
	"net/http"
	"strings"

	"github.com/karatlane/karat/pkg/contextkeys"
	"github.com/karatlane/karat/pkg/httputil"
	"github.com/karatlane/karat/pkg/identity"
)

// SnapshotSource yields the current auth state snapshot. *identity.State
// satisfies it.
type SnapshotSource interface {
	Snapshot() identity.Snapshot
}

// SessionMiddleware resolves the request principal from the bearer token
// and the hydrated auth state.
type SessionMiddleware struct {
	state    SnapshotSource
	optional bool // If true, allow requests without a session
}

// NewSessionMiddleware creates a new session middleware
func NewSessionMiddleware(state SnapshotSource, optional bool) *SessionMiddleware {
	return &SessionMiddleware{
		state:    state,
		optional: optional,
	}
}

// Handler wraps an HTTP handler with session resolution. The bearer token
// must match the current session's access token; anything else is treated
// as signed out.
func (m *SessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Extract token from Authorization header
		// Format: "Bearer <token>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}
		token := parts[1]

		snap := m.state.Snapshot()
		if !snap.Authenticated() || snap.Session.AccessToken != token {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "invalid or expired session")
			return
		}

		ctx := contextkeys.WithPrincipal(r.Context(), snap.Principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
