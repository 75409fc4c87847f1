package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAnnouncements(rows *fakeRows) {
	rows.seed(tableAnnouncements,
		map[string]any{"id": 1, "title": "Diwali hours", "store_id": "3", "user_id": "u-mgr"},
		map[string]any{"id": 2, "title": "Stock audit", "store_id": "7", "user_id": "u-remote"},
	)
}

func TestListAnnouncements_StoreIsolated(t *testing.T) {
	rows := newFakeRows()
	seedAnnouncements(rows)

	t.Run("admin sees every store", func(t *testing.T) {
		srv := newTestServer(t, rows, adminPrincipal())
		rec := doJSON(t, srv, http.MethodGet, "/api/announcements", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(2), decodeBody(t, rec)["count"])
	})

	t.Run("sales sees own store only", func(t *testing.T) {
		srv := newTestServer(t, rows, salesPrincipal())
		rec := doJSON(t, srv, http.MethodGet, "/api/announcements", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody(t, rec)
		require.Equal(t, float64(1), body["count"])
		first := body["results"].([]any)[0].(map[string]any)
		assert.Equal(t, "Diwali hours", first["title"])
	})
}

func TestCreateAnnouncement_SalesForbidden(t *testing.T) {
	srv := newTestServer(t, newFakeRows(), salesPrincipal())

	rec := doJSON(t, srv, http.MethodPost, "/api/announcements", map[string]any{
		"title": "No discounts today",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateAnnouncement_ManagerPostsToOwnStore(t *testing.T) {
	rows := newFakeRows()
	srv := newTestServer(t, rows, managerPrincipal())

	rec := doJSON(t, srv, http.MethodPost, "/api/announcements", map[string]any{
		"title": "New collection on floor 2",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "3", body["store_id"])
	assert.Equal(t, "u-mgr", body["user_id"])
}

func TestDeleteAnnouncement_WrongStoreDenied(t *testing.T) {
	rows := newFakeRows()
	seedAnnouncements(rows)
	srv := newTestServer(t, rows, managerPrincipal())

	rec := doJSON(t, srv, http.MethodDelete, "/api/announcements/2", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, srv, http.MethodDelete, "/api/announcements/1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
