package middleware

import (
	"net/http"

	"github.com/karatlane/karat/pkg/contextkeys"
	"github.com/karatlane/karat/pkg/observability"
	"github.com/karatlane/karat/pkg/scope"
)

// ScopeMiddleware computes the data-visibility scope for the request
// principal and stores it in the context. It must run after the session
// middleware; without a principal the resolved scope is no-access, so
// downstream handlers fail closed.
func ScopeMiddleware(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, _ := contextkeys.Principal(r.Context())
			userScope := scope.Resolve(p)

			if metrics != nil {
				metrics.ScopeResolutionsTotal.WithLabelValues(string(userScope.Type)).Inc()
			}

			ctx := contextkeys.WithScope(r.Context(), userScope)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
