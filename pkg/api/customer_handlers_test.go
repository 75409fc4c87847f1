package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karatlane/karat/pkg/scope"
)

func seedCustomers(rows *fakeRows) {
	rows.seed(tableCustomers,
		map[string]any{"id": 1, "name": "Asha Rao", "store_id": "3", "assigned_to": "u-sales", "phone": "9811000001"},
		map[string]any{"id": 2, "name": "Vikram Shah", "store_id": "3", "assigned_to": "u-other", "phone": "9811000002"},
		map[string]any{"id": 3, "name": "Meera Iyer", "store_id": "7", "assigned_to": "u-remote", "phone": "9811000003"},
	)
}

func TestListCustomers_AdminSeesAll(t *testing.T) {
	rows := newFakeRows()
	seedCustomers(rows)
	srv := newTestServer(t, rows, adminPrincipal())

	rec := doJSON(t, srv, http.MethodGet, "/api/customers", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, string(scope.TypeAll), body["scope"])
	assert.Equal(t, float64(3), body["count"])
}

func TestListCustomers_ManagerSeesOwnStore(t *testing.T) {
	rows := newFakeRows()
	seedCustomers(rows)
	srv := newTestServer(t, rows, managerPrincipal())

	rec := doJSON(t, srv, http.MethodGet, "/api/customers", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, string(scope.TypeStore), body["scope"])
	assert.Equal(t, float64(2), body["count"])
	for _, item := range body["results"].([]any) {
		assert.Equal(t, "3", item.(map[string]any)["store_id"])
	}
}

func TestListCustomers_SalesSeesOwnRecords(t *testing.T) {
	rows := newFakeRows()
	seedCustomers(rows)
	srv := newTestServer(t, rows, salesPrincipal())

	rec := doJSON(t, srv, http.MethodGet, "/api/customers", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, string(scope.TypeOwn), body["scope"])
	assert.Equal(t, float64(1), body["count"])
	first := body["results"].([]any)[0].(map[string]any)
	assert.Equal(t, "Asha Rao", first["name"])
}

func TestGetCustomer_OutOfScopeReadsAsNotFound(t *testing.T) {
	rows := newFakeRows()
	seedCustomers(rows)
	srv := newTestServer(t, rows, managerPrincipal())

	// Customer 3 belongs to store 7, invisible to a store-3 manager.
	rec := doJSON(t, srv, http.MethodGet, "/api/customers/3", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/customers/1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateCustomer_DefaultsToPrincipalStore(t *testing.T) {
	rows := newFakeRows()
	srv := newTestServer(t, rows, salesPrincipal())

	rec := doJSON(t, srv, http.MethodPost, "/api/customers", map[string]any{
		"name":  "Nisha Jain",
		"phone": "9811000009",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "3", body["store_id"])
	assert.Equal(t, "u-sales", body["assigned_to"])
	assert.NotZero(t, body["id"])
}

func TestCreateCustomer_WrongStoreDenied(t *testing.T) {
	rows := newFakeRows()
	srv := newTestServer(t, rows, managerPrincipal())

	rec := doJSON(t, srv, http.MethodPost, "/api/customers", map[string]any{
		"name":     "Nisha Jain",
		"store_id": "7",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), scope.ReasonWrongStore)
}

func TestCreateCustomer_AdminMayTargetAnyStore(t *testing.T) {
	rows := newFakeRows()
	srv := newTestServer(t, rows, adminPrincipal())

	rec := doJSON(t, srv, http.MethodPost, "/api/customers", map[string]any{
		"name":     "Nisha Jain",
		"store_id": "7",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateCustomer_RequiresName(t *testing.T) {
	srv := newTestServer(t, newFakeRows(), managerPrincipal())

	rec := doJSON(t, srv, http.MethodPost, "/api/customers", map[string]any{"phone": "9811000009"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateCustomer(t *testing.T) {
	rows := newFakeRows()
	seedCustomers(rows)
	srv := newTestServer(t, rows, managerPrincipal())

	rec := doJSON(t, srv, http.MethodPut, "/api/customers/2", map[string]any{
		"phone": "9811000022",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := rows.Select(t.Context(), tableCustomers, queryByID(2))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "9811000022", got[0]["phone"])
}

func TestUpdateCustomer_OutOfScope(t *testing.T) {
	rows := newFakeRows()
	seedCustomers(rows)
	srv := newTestServer(t, rows, managerPrincipal())

	rec := doJSON(t, srv, http.MethodPut, "/api/customers/3", map[string]any{"phone": "0"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteCustomer(t *testing.T) {
	rows := newFakeRows()
	seedCustomers(rows)
	srv := newTestServer(t, rows, adminPrincipal())

	rec := doJSON(t, srv, http.MethodDelete, "/api/customers/1", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	got, err := rows.Select(t.Context(), tableCustomers, queryByID(1))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExportCustomers_HonorsScope(t *testing.T) {
	rows := newFakeRows()
	seedCustomers(rows)
	srv := newTestServer(t, rows, managerPrincipal())

	rec := doJSON(t, srv, http.MethodGet, "/api/customers/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	// Header plus the two store-3 customers.
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "name")
	assert.NotContains(t, rec.Body.String(), "Meera Iyer")
}

func TestExportCustomers_NoAccessForbidden(t *testing.T) {
	rows := newFakeRows()
	seedCustomers(rows)
	p := salesPrincipal()
	p.Role = "intern"
	srv := newTestServer(t, rows, p)

	rec := doJSON(t, srv, http.MethodGet, "/api/customers/export", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
