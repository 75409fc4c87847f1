package api

import (
	"net/http"
	"strconv"

	"github.com/karatlane/karat/pkg/audit"
	"github.com/karatlane/karat/pkg/auth"
	"github.com/karatlane/karat/pkg/contextkeys"
	"github.com/karatlane/karat/pkg/httputil"
	"github.com/karatlane/karat/pkg/scope"
	"github.com/karatlane/karat/pkg/stores"
)

// listStores handles GET /api/stores. Admins see every location; other
// roles see only their assigned store.
func (s *Server) listStores(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stores == nil {
		httputil.WriteServiceUnavailable(w, "store directory is not configured")
		return
	}

	principal, _ := contextkeys.Principal(r.Context())
	if principal == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	all := s.deps.Stores.Stores()
	isolation := scope.ResolveStoreIsolation(principal)

	visible := all
	if !isolation.CanSeeAllStores {
		visible = []stores.Store{}
		for _, store := range all {
			if strconv.Itoa(store.ID) == principal.StoreID {
				visible = append(visible, store)
			}
		}
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"results":  visible,
		"count":    len(visible),
		"degraded": s.deps.Stores.Degraded(),
	})
}

// getCurrentStore handles GET /api/stores/current. The selection is per
// principal, read through the preference port.
func (s *Server) getCurrentStore(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stores == nil {
		httputil.WriteServiceUnavailable(w, "store directory is not configured")
		return
	}

	principal, _ := contextkeys.Principal(r.Context())
	if principal == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	storeID := s.deps.Stores.CurrentStoreIDFor(r.Context(), principal.ID)
	store, ok := s.deps.Stores.StoreData(storeID)
	if !ok {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"store_id": storeID,
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, store)
}

// setCurrentStore handles PUT /api/stores/current. Switching the active
// store is an admin-class capability; everyone else stays on their
// assigned store. The selection is written per principal, never shared.
func (s *Server) setCurrentStore(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stores == nil {
		httputil.WriteServiceUnavailable(w, "store directory is not configured")
		return
	}

	principal, _ := contextkeys.Principal(r.Context())
	if principal == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req SetStoreRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.StoreID <= 0 {
		httputil.WriteBadRequest(w, "store_id must be positive")
		return
	}

	target := strconv.Itoa(req.StoreID)
	if principal.Class() != auth.ClassAdmin {
		const reason = "Access denied: Only business admins can switch the active store"
		if s.deps.Metrics != nil {
			s.deps.Metrics.AccessDeniedTotal.WithLabelValues("switch_store", string(principal.Role)).Inc()
		}
		s.deps.Audit.LogAuthorization(r.Context(), audit.EventTypeAuthzStoreDenied,
			principal.ID, audit.ResourceTypeStore, target, audit.EventStatusDenied, reason)
		httputil.WriteForbidden(w, reason)
		return
	}

	if err := s.deps.Stores.SetCurrentStoreFor(r.Context(), principal.ID, req.StoreID); err != nil {
		// Selection applied in memory but the preference write failed.
		s.deps.Audit.LogStoreAction(r.Context(), audit.EventTypeStorePreferenceSet,
			principal.ID, target, "store selected, preference persistence failed: "+err.Error())
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"store_id":  req.StoreID,
			"persisted": false,
		})
		return
	}

	s.deps.Audit.LogStoreAction(r.Context(), audit.EventTypeStoreSwitch,
		principal.ID, target, "active store switched")
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"store_id":  req.StoreID,
		"persisted": true,
	})
}

// getFloors handles GET /api/floors: the floor visibility snapshot for
// the calling principal.
func (s *Server) getFloors(w http.ResponseWriter, r *http.Request) {
	if s.deps.Floors == nil {
		httputil.WriteServiceUnavailable(w, "floor directory is not configured")
		return
	}

	principal, _ := contextkeys.Principal(r.Context())
	if principal == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	s.deps.Floors.Apply(r.Context(), principal)
	snap := s.deps.Floors.Snapshot()

	resp := map[string]any{
		"phase":  snap.Phase.String(),
		"role":   string(snap.Role),
		"floors": snap.Floors,
	}
	if snap.CurrentFloor != nil {
		resp["current_floor"] = snap.CurrentFloor
	}
	if snap.Err != "" {
		resp["error"] = snap.Err
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
