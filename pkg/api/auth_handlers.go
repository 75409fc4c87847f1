package api

import (
	"net/http"
	"strings"

	"github.com/karatlane/karat/pkg/audit"
	"github.com/karatlane/karat/pkg/httputil"
	"github.com/karatlane/karat/pkg/identity"
)

// signIn handles POST /auth/signin.
func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	if s.deps.Provider == nil {
		httputil.WriteServiceUnavailable(w, "identity provider is not configured")
		return
	}

	var req SignInRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		httputil.WriteBadRequest(w, "email and password are required")
		return
	}

	session, err := s.deps.Provider.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.recordSignIn("failure")
		s.deps.Audit.LogAuthentication(r.Context(), audit.EventTypeAuthSignInFailed,
			"", req.Email, audit.EventStatusFailure, err.Error())
		s.logger.WithError(err).WithField("email", req.Email).Warn("sign-in failed")
		httputil.WriteUnauthorized(w, "invalid credentials")
		return
	}

	s.recordSignIn("success")
	s.deps.Audit.LogAuthentication(r.Context(), audit.EventTypeAuthSignIn,
		session.Principal.ID, session.Principal.Email, audit.EventStatusSuccess, "signed in")

	httputil.WriteJSON(w, http.StatusOK, SessionResponse{
		Authenticated: true,
		Hydrated:      true,
		UserID:        session.Principal.ID,
		Email:         session.Principal.Email,
		Role:          string(session.Principal.Role),
		StoreID:       session.Principal.StoreID,
		Floor:         session.Principal.Floor,
	})
}

// signOut handles POST /auth/signout.
func (s *Server) signOut(w http.ResponseWriter, r *http.Request) {
	if s.deps.Provider == nil {
		httputil.WriteServiceUnavailable(w, "identity provider is not configured")
		return
	}

	if err := s.deps.Provider.SignOut(r.Context()); err != nil {
		s.deps.Audit.LogAuthentication(r.Context(), audit.EventTypeAuthSignOut,
			"", "", audit.EventStatusFailure, err.Error())
		httputil.WriteInternalError(w, err)
		return
	}

	s.deps.Audit.LogAuthentication(r.Context(), audit.EventTypeAuthSignOut,
		"", "", audit.EventStatusSuccess, "signed out")
	httputil.WriteNoContent(w)
}

// getSession handles GET /auth/session.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	if s.deps.State == nil {
		httputil.WriteJSON(w, http.StatusOK, SessionResponse{})
		return
	}

	snap := s.deps.State.Snapshot()
	resp := snapshotResponse(snap)
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func snapshotResponse(snap identity.Snapshot) SessionResponse {
	resp := SessionResponse{
		Authenticated: snap.Authenticated(),
		Loading:       snap.Loading,
		Hydrated:      snap.Hydrated,
	}
	if snap.Err != nil {
		resp.Error = snap.Err.Error()
	}
	if resp.Authenticated {
		resp.UserID = snap.Principal.ID
		resp.Email = snap.Principal.Email
		resp.Role = string(snap.Principal.Role)
		resp.StoreID = snap.Principal.StoreID
		resp.Floor = snap.Principal.Floor
	}
	return resp
}

func (s *Server) recordSignIn(status string) {
	if s.deps.Metrics == nil {
		return
	}
	provider := s.deps.ProviderName
	if provider == "" {
		provider = "oidc"
	}
	s.deps.Metrics.SignInsTotal.WithLabelValues(provider, status).Inc()
}
