package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/karatlane/karat/pkg/audit"
	"github.com/karatlane/karat/pkg/auth"
	"github.com/karatlane/karat/pkg/contextkeys"
	"github.com/karatlane/karat/pkg/httputil"
	"github.com/karatlane/karat/pkg/scope"
	"github.com/karatlane/karat/pkg/storage/postgres"
)

// listAnnouncements handles GET /api/announcements. Announcements are
// store-owned, so the narrower store isolation applies: admins see every
// store's announcements, everyone else only their own store's.
func (s *Server) listAnnouncements(w http.ResponseWriter, r *http.Request) {
	principal, _ := contextkeys.Principal(r.Context())
	if principal == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	isolation := scope.ResolveStoreIsolation(principal)
	var filters map[string]string
	if !isolation.CanSeeAllStores {
		filters = isolation.StoreFilter
	}

	records, err := s.deps.Rows.Select(r.Context(), tableAnnouncements, postgres.Query{
		Filters:    filters,
		OrderBy:    "created_at",
		Descending: true,
	})
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"results": emptyIfNilMaps(records),
		"count":   len(records),
	})
}

// createAnnouncement handles POST /api/announcements. Sales roles cannot
// post; managers post to their own store, admins anywhere.
func (s *Server) createAnnouncement(w http.ResponseWriter, r *http.Request) {
	principal, _ := contextkeys.Principal(r.Context())
	if principal == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	if principal.Class() == auth.ClassOwnData || principal.Class() == auth.ClassNoAccess {
		httputil.WriteForbidden(w, "your role cannot post announcements")
		return
	}

	var payload map[string]any
	if !httputil.ParseJSONOrError(w, r, &payload) {
		return
	}
	if !httputil.RequireNonEmpty(w, stringField(payload, "title"), "title") {
		return
	}

	targetStore := stringField(payload, "store_id")
	if targetStore == "" {
		targetStore = principal.StoreID
		payload["store_id"] = targetStore
	}
	if !s.authorizeStoreWrite(w, r, "create", targetStore, audit.ResourceTypeAnnouncement, "") {
		return
	}

	payload["user_id"] = principal.ID
	payload["created_at"] = time.Now().UTC()

	id, err := s.deps.Rows.Insert(r.Context(), tableAnnouncements, payload)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	s.deps.Audit.LogDataMutation(r.Context(), audit.EventTypeDataAnnouncementCreate,
		principal.ID, audit.ResourceTypeAnnouncement, strconv.FormatInt(id, 10), nil, "announcement posted")

	payload["id"] = id
	httputil.WriteCreated(w, payload)
}

// deleteAnnouncement handles DELETE /api/announcements/{id}.
func (s *Server) deleteAnnouncement(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathIntOrError(w, r, "id")
	if !ok {
		return
	}

	records, err := s.deps.Rows.Select(r.Context(), tableAnnouncements, postgres.Query{
		Filters: map[string]string{"id": strconv.Itoa(id)},
		Limit:   1,
	})
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if len(records) == 0 {
		httputil.WriteNotFoundError(w, "announcement not found")
		return
	}

	if !s.authorizeStoreWrite(w, r, "delete", stringField(records[0], "store_id"),
		audit.ResourceTypeAnnouncement, strconv.Itoa(id)) {
		return
	}

	if _, err := s.deps.Rows.Delete(r.Context(), tableAnnouncements, int64(id)); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	s.deps.Audit.LogDataMutation(r.Context(), audit.EventTypeDataAnnouncementDelete,
		principalID(r), audit.ResourceTypeAnnouncement, strconv.Itoa(id), nil, "announcement deleted")
	httputil.WriteNoContent(w)
}

func emptyIfNilMaps(records []map[string]any) []map[string]any {
	if records == nil {
		return []map[string]any{}
	}
	return records
}
