package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/karatlane/karat/pkg/audit"
	"github.com/karatlane/karat/pkg/contextkeys"
	"github.com/karatlane/karat/pkg/httputil"
	"github.com/karatlane/karat/pkg/scope"
	"github.com/karatlane/karat/pkg/storage/postgres"
)

// listEscalations handles GET /api/escalations. An optional status query
// narrows the listing within the caller's scope.
func (s *Server) listEscalations(w http.ResponseWriter, r *http.Request) {
	userScope := contextkeys.Scope(r.Context())
	if userScope.Type == scope.TypeNone {
		httputil.WriteJSON(w, http.StatusOK, ListResponse{Results: []scope.Record{}, Scope: userScope.Type})
		return
	}

	filters := scopeFilters(userScope, tableEscalations)
	if status := httputil.ParseQueryString(r, "status", ""); status != "" {
		if filters == nil {
			filters = map[string]string{}
		}
		filters["status"] = status
	}

	limit, _ := httputil.ParseQueryInt(r, "limit", defaultPageSize)
	offset, _ := httputil.ParseQueryInt(r, "offset", 0)

	records, err := s.deps.Rows.Select(r.Context(), tableEscalations, postgres.Query{
		Filters:    filters,
		OrderBy:    "created_at",
		Descending: true,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	visible := scope.FilterByScope(records, userScope)
	httputil.WriteJSON(w, http.StatusOK, ListResponse{
		Results: emptyIfNil(visible),
		Count:   len(visible),
		Scope:   userScope.Type,
	})
}

// createEscalation handles POST /api/escalations.
func (s *Server) createEscalation(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if !httputil.ParseJSONOrError(w, r, &payload) {
		return
	}
	if !httputil.RequireNonEmpty(w, stringField(payload, "subject"), "subject") {
		return
	}

	principal, _ := contextkeys.Principal(r.Context())
	targetStore := stringField(payload, "store_id")
	if targetStore == "" && principal != nil {
		targetStore = principal.StoreID
		payload["store_id"] = targetStore
	}

	if !s.authorizeStoreWrite(w, r, "create", targetStore, audit.ResourceTypeEscalation, "") {
		return
	}

	if principal != nil {
		payload["user_id"] = principal.ID
	}
	if stringField(payload, "status") == "" {
		payload["status"] = "open"
	}
	payload["created_at"] = time.Now().UTC()

	id, err := s.deps.Rows.Insert(r.Context(), tableEscalations, payload)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	s.deps.Audit.LogDataMutation(r.Context(), audit.EventTypeDataEscalationCreate,
		principalID(r), audit.ResourceTypeEscalation, strconv.FormatInt(id, 10), nil, "escalation created")

	payload["id"] = id
	httputil.WriteCreated(w, payload)
}

// updateEscalation handles PUT /api/escalations/{id}. Typically a status
// transition (open, in_progress, resolved).
func (s *Server) updateEscalation(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathIntOrError(w, r, "id")
	if !ok {
		return
	}

	var payload map[string]any
	if !httputil.ParseJSONOrError(w, r, &payload) {
		return
	}
	delete(payload, "id")
	if len(payload) == 0 {
		httputil.WriteBadRequest(w, "no fields to update")
		return
	}

	existing, ok := s.fetchVisible(w, r, tableEscalations, id)
	if !ok {
		return
	}

	if !s.authorizeStoreWrite(w, r, "update", stringField(existing, "store_id"),
		audit.ResourceTypeEscalation, strconv.Itoa(id)) {
		return
	}

	payload["updated_at"] = time.Now().UTC()
	updated, err := s.deps.Rows.Update(r.Context(), tableEscalations, int64(id), payload)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if !updated {
		httputil.WriteNotFoundError(w, "escalation not found")
		return
	}

	s.deps.Audit.LogDataMutation(r.Context(), audit.EventTypeDataEscalationUpdate,
		principalID(r), audit.ResourceTypeEscalation, strconv.Itoa(id),
		&audit.ChangeDetails{Before: existing, After: payload}, "escalation updated")
	httputil.WriteSuccessMessage(w, "escalation updated", map[string]any{"id": id})
}
