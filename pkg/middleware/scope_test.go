package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karatlane/karat/pkg/auth"
	"github.com/karatlane/karat/pkg/contextkeys"
	"github.com/karatlane/karat/pkg/observability"
	"github.com/karatlane/karat/pkg/scope"
)

func resolveScopeThrough(t *testing.T, metrics *observability.Metrics, principal *auth.Principal) scope.UserScope {
	t.Helper()

	var resolved scope.UserScope
	handler := ScopeMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resolved = contextkeys.Scope(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/customers", nil)
	if principal != nil {
		req = req.WithContext(contextkeys.WithPrincipal(req.Context(), principal))
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	return resolved
}

func TestScopeMiddleware_ResolvesFromPrincipal(t *testing.T) {
	resolved := resolveScopeThrough(t, nil, &auth.Principal{
		ID:      "u-17",
		Role:    auth.RoleManager,
		StoreID: "3",
	})

	assert.Equal(t, scope.TypeStore, resolved.Type)
	assert.Equal(t, "3", resolved.Filters[scope.FilterStoreID])
}

func TestScopeMiddleware_FailsClosedWithoutPrincipal(t *testing.T) {
	resolved := resolveScopeThrough(t, nil, nil)

	assert.Equal(t, scope.TypeNone, resolved.Type)
}

func TestScopeMiddleware_RecordsMetric(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	resolveScopeThrough(t, metrics, &auth.Principal{ID: "u-1", Role: auth.RolePlatformAdmin})
	resolveScopeThrough(t, metrics, &auth.Principal{ID: "u-2", Role: auth.RoleInhouseSales})

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ScopeResolutionsTotal.WithLabelValues("all")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ScopeResolutionsTotal.WithLabelValues("own")))
}
