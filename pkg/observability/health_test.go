package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	_ "github.com/mattn/go-sqlite3"
)

func TestHealthChecker_Liveness(t *testing.T) {
	checker := NewHealthChecker(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	checker.Liveness(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from liveness, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode liveness body: %v", err)
	}
	if body["status"] != StatusHealthy {
		t.Errorf("Expected healthy status, got %v", body["status"])
	}
}

func TestHealthChecker_Check_AllHealthy(t *testing.T) {
	// No SetMaxOpenConns: the unlimited pool must not read as exhausted.
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	defer db.Close()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	checker := NewHealthChecker(db, rdb)
	status := checker.Check(context.Background())

	if status.Status != StatusHealthy {
		t.Errorf("Expected healthy status, got %s", status.Status)
	}
	if _, ok := status.Dependencies["database"]; !ok {
		t.Error("Expected database dependency status")
	}
	if _, ok := status.Dependencies["redis"]; !ok {
		t.Error("Expected redis dependency status")
	}
}

func TestHealthChecker_Check_RedisDownIsDegraded(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	defer db.Close()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	mr.Close()

	checker := NewHealthChecker(db, rdb)
	status := checker.Check(context.Background())

	if status.Status != StatusDegraded {
		t.Errorf("Expected degraded status with redis down, got %s", status.Status)
	}
}

func TestHealthChecker_Readiness_Unhealthy(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.Close()

	checker := NewHealthChecker(db, nil)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	checker.Readiness(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503 with closed database, got %d", rec.Code)
	}
}
