package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/karatlane/karat/pkg/audit"
	"github.com/karatlane/karat/pkg/auth"
	"github.com/karatlane/karat/pkg/config"
	"github.com/karatlane/karat/pkg/floors"
	"github.com/karatlane/karat/pkg/guard"
	"github.com/karatlane/karat/pkg/httputil"
	"github.com/karatlane/karat/pkg/identity"
	"github.com/karatlane/karat/pkg/middleware"
	"github.com/karatlane/karat/pkg/observability"
	"github.com/karatlane/karat/pkg/stores"
)

// Deps carries everything the server wires together. Rows is required;
// the rest degrade gracefully when absent so tests can assemble only the
// slice they exercise.
type Deps struct {
	Rows     Rows
	Media    Media
	Stores   *stores.Context
	Floors   *floors.Context
	Provider identity.Provider
	// ProviderName labels sign-in metrics ("oidc" or "saml").
	ProviderName string
	State        SessionState
	Policy       *config.AccessPolicy
	Audit        audit.Logger
	AuditAPI     *audit.Handlers

	Logger    *observability.Logger
	Metrics   *observability.Metrics
	SignInURL string

	// LogAllRequests forwards every request to the audit trail instead
	// of mutations and sensitive reads only.
	LogAllRequests bool
}

// Server is the CRM API: session endpoints, scoped record access, store
// and floor context, and the audit trail surface.
type Server struct {
	router *mux.Router
	deps   Deps
	logger *observability.Logger
}

// NewServer assembles the router and middleware chain.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = observability.NewDefaultLogger()
	}
	if deps.Audit == nil {
		deps.Audit = audit.NewNoOpLogger()
	}
	if deps.SignInURL == "" {
		deps.SignInURL = "/signin"
	}

	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
		logger: deps.Logger,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures middleware and all route groups.
func (s *Server) setupRoutes() {
	s.router.Use(httputil.RequestIDMiddleware)
	s.router.Use(httputil.LoggingMiddleware(s.logger))
	s.router.Use(httputil.RecoveryMiddleware(s.logger))
	if s.deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.deps.Metrics))
	}
	s.router.Use(audit.NewMiddleware(s.deps.Audit, s.deps.LogAllRequests).Handler)

	// Session endpoints: sign-in is anonymous, the rest read whatever
	// principal the optional session middleware can attach.
	authRouter := s.router.PathPrefix("/auth").Subrouter()
	if s.deps.State != nil {
		authRouter.Use(middleware.NewSessionMiddleware(s.deps.State, true).Handler)
	}
	authRouter.HandleFunc("/signin", s.signIn).Methods("POST")
	authRouter.HandleFunc("/signout", s.signOut).Methods("POST")
	authRouter.HandleFunc("/session", s.getSession).Methods("GET")

	gatekeeper := &guard.Middleware{
		SignInURL: s.deps.SignInURL,
		Metrics:   s.deps.Metrics,
	}
	if s.deps.State != nil {
		gatekeeper.State = s.deps.State
	}

	// Scoped CRM surface.
	api := s.router.PathPrefix("/api").Subrouter()
	if s.deps.State != nil {
		api.Use(middleware.NewSessionMiddleware(s.deps.State, false).Handler)
	}
	api.Use(middleware.ScopeMiddleware(s.deps.Metrics))
	if s.deps.Stores != nil {
		api.Use(middleware.StoreContextMiddleware(s.deps.Stores))
	}
	api.Use(policyGuard(gatekeeper, s.deps.Policy))

	api.HandleFunc("/customers", s.listCustomers).Methods("GET")
	api.HandleFunc("/customers", s.createCustomer).Methods("POST")
	api.HandleFunc("/customers/export", s.exportCustomers).Methods("GET")
	api.HandleFunc("/customers/{id:[0-9]+}", s.getCustomer).Methods("GET")
	api.HandleFunc("/customers/{id:[0-9]+}", s.updateCustomer).Methods("PUT")
	api.HandleFunc("/customers/{id:[0-9]+}", s.deleteCustomer).Methods("DELETE")

	api.HandleFunc("/escalations", s.listEscalations).Methods("GET")
	api.HandleFunc("/escalations", s.createEscalation).Methods("POST")
	api.HandleFunc("/escalations/{id:[0-9]+}", s.updateEscalation).Methods("PUT")

	api.HandleFunc("/announcements", s.listAnnouncements).Methods("GET")
	api.HandleFunc("/announcements", s.createAnnouncement).Methods("POST")
	api.HandleFunc("/announcements/{id:[0-9]+}", s.deleteAnnouncement).Methods("DELETE")

	api.HandleFunc("/products", s.listProducts).Methods("GET")
	if s.deps.Media != nil {
		api.HandleFunc("/products/{id:[0-9]+}/image", s.uploadProductImage).Methods("PUT")
		api.HandleFunc("/products/{id:[0-9]+}/image", s.getProductImage).Methods("GET")
	}

	api.HandleFunc("/stores", s.listStores).Methods("GET")
	api.HandleFunc("/stores/current", s.getCurrentStore).Methods("GET")
	api.HandleFunc("/stores/current", s.setCurrentStore).Methods("PUT")

	api.HandleFunc("/floors", s.getFloors).Methods("GET")

	// Audit trail: admins only, regardless of the policy file.
	if s.deps.AuditAPI != nil {
		// The audit handlers register absolute paths, so a matcher-free
		// subrouter carries their middleware.
		auditRouter := s.router.NewRoute().Subrouter()
		if s.deps.State != nil {
			auditRouter.Use(middleware.NewSessionMiddleware(s.deps.State, false).Handler)
		}
		auditRouter.Use(gatekeeper.Require(auth.RolePlatformAdmin, auth.RoleBusinessAdmin))
		s.deps.AuditAPI.RegisterRoutes(auditRouter)
	}
}

// policyGuard enforces the hot-reloaded route policy: each request is
// checked against the role allowlist for its longest matching prefix.
func policyGuard(g *guard.Middleware, policy *config.AccessPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var roles []auth.Role
			if policy != nil {
				roles = policy.RolesFor(r.URL.Path)
			}
			g.Require(roles...)(next).ServeHTTP(w, r)
		})
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// RouteRegistrar is implemented by handler groups that attach their own
// routes.
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes mounts an extra handler group on the root router.
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.router)
}
