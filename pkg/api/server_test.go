package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"time"

	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karatlane/karat/pkg/audit"
	"github.com/karatlane/karat/pkg/auth"
	"github.com/karatlane/karat/pkg/config"
	"github.com/karatlane/karat/pkg/identity"
	"github.com/karatlane/karat/pkg/scope"
	"github.com/karatlane/karat/pkg/storage/postgres"
)

const testToken = "tok-123"

// fakeRows is an in-memory Rows implementation. Filters are equality
// matches against stringified column values, the way the row store
// behaves against postgres.
type fakeRows struct {
	mu     sync.Mutex
	tables map[string][]map[string]any
	nextID int64
	err    error
}

func newFakeRows() *fakeRows {
	return &fakeRows{tables: map[string][]map[string]any{}, nextID: 100}
}

func (f *fakeRows) seed(table string, rows ...map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[table] = append(f.tables[table], rows...)
}

func (f *fakeRows) Select(ctx context.Context, table string, q postgres.Query) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	var out []map[string]any
	for _, row := range f.tables[table] {
		if matchesFilters(row, q.Filters) {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return fmt.Sprintf("%v", out[i]["id"]) < fmt.Sprintf("%v", out[j]["id"])
	})
	if q.Offset > 0 && q.Offset < len(out) {
		out = out[q.Offset:]
	} else if q.Offset >= len(out) {
		out = nil
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *fakeRows) Count(ctx context.Context, table string, filters map[string]string) (int, error) {
	rows, err := f.Select(ctx, table, postgres.Query{Filters: filters})
	return len(rows), err
}

func (f *fakeRows) Insert(ctx context.Context, table string, values map[string]any) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.nextID++
	row := make(map[string]any, len(values)+1)
	for k, v := range values {
		row[k] = v
	}
	row["id"] = f.nextID
	f.tables[table] = append(f.tables[table], row)
	return f.nextID, nil
}

func (f *fakeRows) Update(ctx context.Context, table string, id int64, values map[string]any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	for _, row := range f.tables[table] {
		if fmt.Sprintf("%v", row["id"]) == fmt.Sprintf("%v", id) {
			for k, v := range values {
				row[k] = v
			}
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRows) Delete(ctx context.Context, table string, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	rows := f.tables[table]
	for i, row := range rows {
		if fmt.Sprintf("%v", row["id"]) == fmt.Sprintf("%v", id) {
			f.tables[table] = append(rows[:i], rows[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func matchesFilters(row map[string]any, filters map[string]string) bool {
	for col, want := range filters {
		if fmt.Sprintf("%v", row[col]) != want {
			return false
		}
	}
	return true
}

// fixedState serves one immutable snapshot.
type fixedState struct {
	snap identity.Snapshot
}

func (s *fixedState) Snapshot() identity.Snapshot { return s.snap }

func stateFor(p auth.Principal) *fixedState {
	return &fixedState{snap: identity.Snapshot{
		Principal: &p,
		Session: &auth.Session{
			AccessToken: testToken,
			ExpiresAt:   time.Now().Add(time.Hour),
			Principal:   p,
		},
		Hydrated:    true,
		Initialized: true,
	}}
}

func adminPrincipal() auth.Principal {
	return auth.Principal{ID: "u-admin", Email: "admin@karat.test", Role: auth.RoleBusinessAdmin}
}

func managerPrincipal() auth.Principal {
	return auth.Principal{ID: "u-mgr", Email: "mgr@karat.test", Role: auth.RoleManager, StoreID: "3"}
}

func salesPrincipal() auth.Principal {
	return auth.Principal{ID: "u-sales", Email: "sales@karat.test", Role: auth.RoleInhouseSales, StoreID: "3"}
}

func newTestServer(t *testing.T, rows *fakeRows, p auth.Principal) *Server {
	t.Helper()
	return NewServer(Deps{
		Rows:  rows,
		State: stateFor(p),
	})
}

func doJSON(t *testing.T, srv http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+testToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestServer_RejectsMissingToken(t *testing.T) {
	srv := newTestServer(t, newFakeRows(), managerPrincipal())

	req := httptest.NewRequest(http.MethodGet, "/api/customers", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_RejectsWrongToken(t *testing.T) {
	srv := newTestServer(t, newFakeRows(), managerPrincipal())

	req := httptest.NewRequest(http.MethodGet, "/api/customers", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_LoadingStateGates(t *testing.T) {
	p := managerPrincipal()
	state := stateFor(p)
	state.snap.Initialized = false
	state.snap.Loading = true

	srv := NewServer(Deps{Rows: newFakeRows(), State: state})

	rec := doJSON(t, srv, http.MethodGet, "/api/customers", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_AuditRoutesAdminOnly(t *testing.T) {
	t.Run("manager denied", func(t *testing.T) {
		srv := NewServer(Deps{
			Rows:     newFakeRows(),
			State:    stateFor(managerPrincipal()),
			AuditAPI: newStubAuditHandlers(),
		})

		rec := doJSON(t, srv, http.MethodGet, "/audit/events", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin allowed", func(t *testing.T) {
		srv := NewServer(Deps{
			Rows:     newFakeRows(),
			State:    stateFor(adminPrincipal()),
			AuditAPI: newStubAuditHandlers(),
		})

		rec := doJSON(t, srv, http.MethodGet, "/audit/events", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestServer_NoAccessRoleSeesNothing(t *testing.T) {
	rows := newFakeRows()
	rows.seed(tableCustomers, map[string]any{"id": 1, "name": "Asha", "store_id": "3"})

	p := auth.Principal{ID: "u-x", Email: "x@karat.test", Role: auth.Role("intern")}
	srv := newTestServer(t, rows, p)

	rec := doJSON(t, srv, http.MethodGet, "/api/customers", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, string(scope.TypeNone), body["scope"])
	assert.Empty(t, body["results"])
}

// emptyAuditStore satisfies audit.Store with empty results.
type emptyAuditStore struct{}

func (s *emptyAuditStore) Search(ctx context.Context, filter audit.SearchFilter) ([]*audit.AuditEvent, error) {
	return []*audit.AuditEvent{}, nil
}

func (s *emptyAuditStore) Get(ctx context.Context, id int64) (*audit.AuditEvent, error) {
	return nil, nil
}

func (s *emptyAuditStore) GetStats(ctx context.Context, startTime, endTime *time.Time) (*audit.AuditStats, error) {
	return &audit.AuditStats{}, nil
}

func (s *emptyAuditStore) Export(ctx context.Context, filter audit.SearchFilter, format audit.ExportFormat) ([]byte, error) {
	return []byte("[]"), nil
}

func (s *emptyAuditStore) Cleanup(ctx context.Context, policy audit.RetentionPolicy) (int64, error) {
	return 0, nil
}

func newStubAuditHandlers() *audit.Handlers {
	return audit.NewHandlers(&emptyAuditStore{})
}

func queryByID(id int) postgres.Query {
	return postgres.Query{Filters: map[string]string{"id": fmt.Sprintf("%d", id)}}
}

func TestServer_PolicyRestrictsRoutes(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/policy.yaml"
	policyYAML := "routes:\n  /api/customers/export:\n    - platform_admin\n    - business_admin\n"
	require.NoError(t, writeFile(path, policyYAML))

	policy, err := config.LoadAccessPolicy(path, nil)
	require.NoError(t, err)

	rows := newFakeRows()
	rows.seed(tableCustomers, map[string]any{"id": 1, "name": "Asha", "store_id": "3"})

	srv := NewServer(Deps{
		Rows:   rows,
		State:  stateFor(managerPrincipal()),
		Policy: policy,
	})

	rec := doJSON(t, srv, http.MethodGet, "/api/customers/export", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/customers", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}
