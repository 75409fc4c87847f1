package guard

import (
	"net/http"

	"github.com/karatlane/karat/pkg/auth"
	"github.com/karatlane/karat/pkg/contextkeys"
	"github.com/karatlane/karat/pkg/httputil"
	"github.com/karatlane/karat/pkg/identity"
	"github.com/karatlane/karat/pkg/observability"
)

// StateSource is the slice of the auth state store the middleware needs.
type StateSource interface {
	Snapshot() identity.Snapshot
}

// Middleware enforces guard decisions on HTTP routes. The session
// middleware must run first so the principal is already on the request
// context.
type Middleware struct {
	// SignInURL is where unauthenticated and denied clients are sent.
	SignInURL string
	// State, when set, rejects requests with 503 until hydration has
	// finished, mirroring the loading gate.
	State   StateSource
	Metrics *observability.Metrics
}

// Require admits only principals whose role is in the allowlist. An
// empty allowlist admits any authenticated principal.
func (m *Middleware) Require(requiredRoles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.State != nil && !m.State.Snapshot().Initialized {
				httputil.WriteServiceUnavailable(w, "authentication state is loading")
				return
			}

			principal, ok := contextkeys.Principal(r.Context())
			if !ok || principal == nil {
				if m.Metrics != nil {
					m.Metrics.GuardRedirectsTotal.WithLabelValues("unauthenticated").Inc()
				}
				httputil.WriteRedirectError(w, http.StatusUnauthorized, "Authentication required", m.SignInURL)
				return
			}

			if len(requiredRoles) > 0 && !roleAllowed(principal.Role, requiredRoles) {
				if m.Metrics != nil {
					m.Metrics.GuardRedirectsTotal.WithLabelValues("access_denied").Inc()
					m.Metrics.AccessDeniedTotal.WithLabelValues(r.URL.Path, string(principal.Role)).Inc()
				}
				observability.FromContext(r.Context()).
					WithField("role", string(principal.Role)).
					WithField("path", r.URL.Path).
					Warn("access denied by role allowlist")
				httputil.WriteRedirectError(w, http.StatusForbidden, "Access Denied", m.SignInURL)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
