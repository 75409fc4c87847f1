// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//   import "github.com/karatlane/karat/pkg/contextkeys"
//   ctx = contextkeys.WithPrincipal(ctx, principal)
//   p, ok := contextkeys.Principal(ctx)
package contextkeys

import (
	"context"

	"github.com/karatlane/karat/pkg/auth"
	"github.com/karatlane/karat/pkg/scope"
)

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains *auth.Principal
	// Set by: middleware.SessionMiddleware (pkg/middleware/session.go)
	// Required by: guard middleware, all protected endpoints, audit trail
	PrincipalKey Key = "principal"

	// ScopeKey contains scope.UserScope
	// Set by: middleware.ScopeMiddleware after the principal is resolved
	// Required by: list/export handlers building scoped queries
	ScopeKey Key = "user_scope"

	// StoreKey contains *stores.Store (the active store)
	// Set by: middleware.StoreContextMiddleware (pkg/middleware/store.go)
	// Required by: store-scoped endpoints
	StoreKey Key = "active_store"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil request-ID middleware
	// Used by: logger, audit trail
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Set by: observability middleware
	LoggerKey Key = "logger"

	// AuditLoggerKey contains audit.Logger
	// Set by: audit middleware (pkg/audit/middleware.go)
	AuditLoggerKey Key = "audit_logger"

	// RequestStartTimeKey contains the request start timestamp
	// Set by: audit middleware, used for duration calculation
	RequestStartTimeKey Key = "request_start_time"

	// PrincipalIDKey contains the acting user's ID as a plain string,
	// for log enrichment where the full principal is not needed
	PrincipalIDKey Key = "principal_id"

	// StoreIDKey contains the acting user's store ID as a plain string
	StoreIDKey Key = "store_id"
)

// WithPrincipal adds the authenticated principal to the context.
func WithPrincipal(ctx context.Context, p *auth.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

// Principal retrieves the authenticated principal from the context.
func Principal(ctx context.Context) (*auth.Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(*auth.Principal)
	return p, ok && p != nil
}

// WithScope adds the resolved user scope to the context.
func WithScope(ctx context.Context, s scope.UserScope) context.Context {
	return context.WithValue(ctx, ScopeKey, s)
}

// Scope retrieves the resolved user scope from the context. When absent it
// returns the no-access scope so callers fail closed.
func Scope(ctx context.Context) scope.UserScope {
	if s, ok := ctx.Value(ScopeKey).(scope.UserScope); ok {
		return s
	}
	return scope.Resolve(nil)
}

// WithStore adds the active store to the context.
func WithStore(ctx context.Context, store interface{}) context.Context {
	return context.WithValue(ctx, StoreKey, store)
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
