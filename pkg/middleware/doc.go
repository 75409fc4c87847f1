// Package middleware provides the request-context middleware chain:
// session resolution from the hydrated auth state, scope computation
// for the resolved principal, and active-store injection. The ambient
// middleware (request ID, logging, recovery, CORS) lives in httputil.
package middleware
