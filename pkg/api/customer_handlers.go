package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/karatlane/karat/pkg/audit"
	"github.com/karatlane/karat/pkg/contextkeys"
	"github.com/karatlane/karat/pkg/httputil"
	"github.com/karatlane/karat/pkg/scope"
	"github.com/karatlane/karat/pkg/storage/postgres"
)

const defaultPageSize = 50

// listCustomers handles GET /api/customers. The computed scope drives the
// SQL filters, and the result passes through FilterByScope again so a
// mismatched row can never leak.
func (s *Server) listCustomers(w http.ResponseWriter, r *http.Request) {
	userScope := contextkeys.Scope(r.Context())
	if userScope.Type == scope.TypeNone {
		httputil.WriteJSON(w, http.StatusOK, ListResponse{Results: []scope.Record{}, Scope: userScope.Type})
		return
	}

	limit, _ := httputil.ParseQueryInt(r, "limit", defaultPageSize)
	offset, _ := httputil.ParseQueryInt(r, "offset", 0)

	records, err := s.deps.Rows.Select(r.Context(), tableCustomers, postgres.Query{
		Filters:    scopeFilters(userScope, tableCustomers),
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

// getCustomer handles GET /api/customers/{id}. Records outside the
// caller's scope read as absent, not forbidden.
func (s *Server) getCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathIntOrError(w, r, "id")
	if !ok {
		return
	}

	record, ok := s.fetchVisible(w, r, tableCustomers, id)
	if !ok {
		return
	}

	s.deps.Audit.LogAccess(r.Context(), audit.EventTypeAccessCustomerRead,
		principalID(r), audit.ResourceTypeCustomer, strconv.Itoa(id), "customer viewed")
	httputil.WriteJSON(w, http.StatusOK, record)
}

// createCustomer handles POST /api/customers.
func (s *Server) createCustomer(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if !httputil.ParseJSONOrError(w, r, &payload) {
		return
	}
	if !httputil.RequireNonEmpty(w, stringField(payload, "name"), "name") {
		return
	}

	principal, _ := contextkeys.Principal(r.Context())
	targetStore := stringField(payload, "store_id")
	if targetStore == "" && principal != nil {
		targetStore = principal.StoreID
		payload["store_id"] = targetStore
	}

	if !s.authorizeStoreWrite(w, r, "create", targetStore, audit.ResourceTypeCustomer, "") {
		return
	}

	if principal != nil && stringField(payload, "assigned_to") == "" {
		payload["assigned_to"] = principal.ID
	}
	payload["created_at"] = time.Now().UTC()

	id, err := s.deps.Rows.Insert(r.Context(), tableCustomers, payload)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	s.deps.Audit.LogDataMutation(r.Context(), audit.EventTypeDataCustomerCreate,
		principalID(r), audit.ResourceTypeCustomer, strconv.FormatInt(id, 10), nil, "customer created")

	payload["id"] = id
	httputil.WriteCreated(w, payload)
}

// updateCustomer handles PUT /api/customers/{id}.
func (s *Server) updateCustomer(w http.ResponseWriter, r *http.Request) {
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

	existing, ok := s.fetchVisible(w, r, tableCustomers, id)
	if !ok {
		return
	}

	if !s.authorizeStoreWrite(w, r, "update", stringField(existing, "store_id"),
		audit.ResourceTypeCustomer, strconv.Itoa(id)) {
		return
	}

	payload["updated_at"] = time.Now().UTC()
	updated, err := s.deps.Rows.Update(r.Context(), tableCustomers, int64(id), payload)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if !updated {
		httputil.WriteNotFoundError(w, "customer not found")
		return
	}

	s.deps.Audit.LogDataMutation(r.Context(), audit.EventTypeDataCustomerUpdate,
		principalID(r), audit.ResourceTypeCustomer, strconv.Itoa(id),
		&audit.ChangeDetails{After: payload}, "customer updated")
	httputil.WriteSuccessMessage(w, "customer updated", map[string]any{"id": id})
}

// deleteCustomer handles DELETE /api/customers/{id}.
func (s *Server) deleteCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathIntOrError(w, r, "id")
	if !ok {
		return
	}

	existing, ok := s.fetchVisible(w, r, tableCustomers, id)
	if !ok {
		return
	}

	if !s.authorizeStoreWrite(w, r, "delete", stringField(existing, "store_id"),
		audit.ResourceTypeCustomer, strconv.Itoa(id)) {
		return
	}

	deleted, err := s.deps.Rows.Delete(r.Context(), tableCustomers, int64(id))
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if !deleted {
		httputil.WriteNotFoundError(w, "customer not found")
		return
	}

	s.deps.Audit.LogDataMutation(r.Context(), audit.EventTypeDataCustomerDelete,
		principalID(r), audit.ResourceTypeCustomer, strconv.Itoa(id), nil, "customer deleted")
	httputil.WriteNoContent(w)
}

// exportCustomers handles GET /api/customers/export. The CSV carries only
// rows the caller's scope admits.
func (s *Server) exportCustomers(w http.ResponseWriter, r *http.Request) {
	userScope := contextkeys.Scope(r.Context())
	if userScope.Type == scope.TypeNone {
		httputil.WriteForbidden(w, "your role has no data access")
		return
	}

	records, err := s.deps.Rows.Select(r.Context(), tableCustomers, postgres.Query{
		Filters:    scopeFilters(userScope, tableCustomers),
		OrderBy:    "created_at",
		Descending: true,
	})
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	visible := scope.FilterByScope(records, userScope)

	s.deps.Audit.LogAccess(r.Context(), audit.EventTypeDataExport,
		principalID(r), audit.ResourceTypeExport, tableCustomers,
		fmt.Sprintf("customer export: %d rows", len(visible)))

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=customers-%s.csv", time.Now().UTC().Format("2006-01-02")))

	columns := []string{"id", "name", "phone", "email", "store_id", "assigned_to", "created_at"}
	writer := csv.NewWriter(w)
	writer.Write(columns)
	for _, record := range visible {
		row := make([]string, len(columns))
		for i, col := range columns {
			row[i] = stringify(record[col])
		}
		writer.Write(row)
	}
	writer.Flush()
}

// fetchVisible loads the record by id and applies scope filtering; it
// writes the 404 itself when the record is absent or out of scope.
func (s *Server) fetchVisible(w http.ResponseWriter, r *http.Request, table string, id int) (scope.Record, bool) {
	records, err := s.deps.Rows.Select(r.Context(), table, postgres.Query{
		Filters: map[string]string{"id": strconv.Itoa(id)},
		Limit:   1,
	})
	if err != nil {
		httputil.WriteInternalError(w, err)
		return nil, false
	}

	userScope := contextkeys.Scope(r.Context())
	visible := scope.FilterByScope(records, userScope)
	if len(visible) == 0 {
		httputil.WriteNotFoundError(w, "record not found")
		return nil, false
	}
	return visible[0], true
}

// authorizeStoreWrite runs the store access check for a mutation and
// writes the 403, audit event, and metric on denial.
func (s *Server) authorizeStoreWrite(w http.ResponseWriter, r *http.Request, action, targetStore string, resource audit.ResourceType, resourceID string) bool {
	principal, ok := contextkeys.Principal(r.Context())
	if !ok || principal == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return false
	}

	result := scope.ValidateStoreAccess(action, targetStore, principal.StoreID, string(principal.Role))
	if result.Allowed {
		return true
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.AccessDeniedTotal.WithLabelValues(action, string(principal.Role)).Inc()
	}
	s.deps.Audit.LogAuthorization(r.Context(), audit.EventTypeAuthzStoreDenied,
		principal.ID, resource, resourceID, audit.EventStatusDenied, result.Reason)
	httputil.WriteForbidden(w, result.Reason)
	return false
}

// scopeFilters converts a scope into row-store equality filters. The
// own-data filter lands on the table's ownership column.
func scopeFilters(s scope.UserScope, table string) map[string]string {
	params := scope.QueryParams(s)
	if len(params) == 0 {
		return nil
	}
	if userID, ok := params[scope.FilterUserID]; ok {
		delete(params, scope.FilterUserID)
		params[ownColumn(table)] = userID
	}
	return params
}

// ownColumn names the column that records which user a row belongs to.
func ownColumn(table string) string {
	if table == tableCustomers {
		return "assigned_to"
	}
	return "user_id"
}

func principalID(r *http.Request) string {
	if p, ok := contextkeys.Principal(r.Context()); ok && p != nil {
		return p.ID
	}
	return ""
}

func stringField(record map[string]any, field string) string {
	if v, ok := record[field]; ok {
		return stringify(v)
	}
	return ""
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func emptyIfNil(records []scope.Record) []scope.Record {
	if records == nil {
		return []scope.Record{}
	}
	return records
}
