package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubStore serves canned events for handler tests.
type stubStore struct {
	events     []*AuditEvent
	lastFilter SearchFilter
	lastFormat ExportFormat
}

func (s *stubStore) Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error) {
	s.lastFilter = filter
	return s.events, nil
}

func (s *stubStore) Get(ctx context.Context, id int64) (*AuditEvent, error) {
	for _, event := range s.events {
		if event.ID == id {
			return event, nil
		}
	}
	return nil, nil
}

func (s *stubStore) GetStats(ctx context.Context, startTime, endTime *time.Time) (*AuditStats, error) {
	return &AuditStats{TotalEvents: int64(len(s.events))}, nil
}

func (s *stubStore) Export(ctx context.Context, filter SearchFilter, format ExportFormat) ([]byte, error) {
	s.lastFilter = filter
	s.lastFormat = format
	switch format {
	case ExportFormatCSV:
		return exportCSV(s.events)
	case ExportFormatNDJSON:
		return exportNDJSON(s.events)
	default:
		return exportJSON(s.events)
	}
}

func (s *stubStore) Cleanup(ctx context.Context, policy RetentionPolicy) (int64, error) {
	return 0, nil
}

func newHandlersRouter(store Store) *mux.Router {
	router := mux.NewRouter()
	NewHandlers(store).RegisterRoutes(router)
	return router
}

func TestHandlers_ListEvents(t *testing.T) {
	store := &stubStore{events: sampleEvents()}
	router := newHandlersRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/audit/events?user_id=u-17&status=denied&limit=25", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Events []*AuditEvent `json:"events"`
		Count  int           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)

	assert.Equal(t, "u-17", store.lastFilter.UserID)
	require.NotNil(t, store.lastFilter.Status)
	assert.Equal(t, EventStatusDenied, *store.lastFilter.Status)
	assert.Equal(t, 25, store.lastFilter.Limit)
}

func TestHandlers_ListEventsDefaultLimit(t *testing.T) {
	store := &stubStore{}
	router := newHandlersRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/audit/events", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, 100, store.lastFilter.Limit)
}

func TestHandlers_GetEvent(t *testing.T) {
	store := &stubStore{events: sampleEvents()}
	router := newHandlersRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/audit/events/2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var event AuditEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &event))
	assert.Equal(t, EventTypeAuthzStoreDenied, event.EventType)
}

func TestHandlers_GetEventNotFound(t *testing.T) {
	store := &stubStore{}
	router := newHandlersRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/audit/events/404", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlers_GetEventBadID(t *testing.T) {
	router := newHandlersRouter(&stubStore{})

	req := httptest.NewRequest(http.MethodGet, "/audit/events/abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_ExportCSV(t *testing.T) {
	store := &stubStore{events: sampleEvents()}
	router := newHandlersRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/audit/export?format=csv", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "audit-events.csv")
	assert.Equal(t, ExportFormatCSV, store.lastFormat)
}

func TestHandlers_ExportDefaultsToJSON(t *testing.T) {
	store := &stubStore{events: sampleEvents()}
	router := newHandlersRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/audit/export", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ExportFormatJSON, store.lastFormat)
}

func TestHandlers_Stats(t *testing.T) {
	store := &stubStore{events: sampleEvents()}
	router := newHandlersRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/audit/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var stats AuditStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(2), stats.TotalEvents)
}
