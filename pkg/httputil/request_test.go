package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
)

func TestParseJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Aanya"}`))

	var dest struct {
		Name string `json:"name"`
	}
	if err := ParseJSON(req, &dest); err != nil {
		t.Fatalf("ParseJSON failed: %v", err)
	}
	if dest.Name != "Aanya" {
		t.Errorf("Expected name 'Aanya', got %q", dest.Name)
	}
}

func TestParseJSONOrError_Invalid(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{broken`))
	rec := httptest.NewRecorder()

	var dest map[string]string
	if ParseJSONOrError(rec, req, &dest) {
		t.Fatal("Expected failure for invalid JSON")
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestParsePathString(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/stores/s42", nil)
	req = mux.SetURLVars(req, map[string]string{"storeID": "s42"})

	val, err := ParsePathString(req, "storeID")
	if err != nil {
		t.Fatalf("ParsePathString failed: %v", err)
	}
	if val != "s42" {
		t.Errorf("Expected 's42', got %q", val)
	}

	if _, err := ParsePathString(req, "missing"); err == nil {
		t.Error("Expected error for missing parameter")
	}
}

func TestParsePathInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/floors/3", nil)
	req = mux.SetURLVars(req, map[string]string{"floor": "3"})

	val, err := ParsePathInt(req, "floor")
	if err != nil {
		t.Fatalf("ParsePathInt failed: %v", err)
	}
	if val != 3 {
		t.Errorf("Expected 3, got %d", val)
	}

	req = mux.SetURLVars(req, map[string]string{"floor": "ground"})
	if _, err := ParsePathInt(req, "floor"); err == nil {
		t.Error("Expected error for non-numeric parameter")
	}
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=25", nil)

	val, err := ParseQueryInt(req, "limit", 50)
	if err != nil {
		t.Fatalf("ParseQueryInt failed: %v", err)
	}
	if val != 25 {
		t.Errorf("Expected 25, got %d", val)
	}

	val, err = ParseQueryInt(req, "offset", 0)
	if err != nil || val != 0 {
		t.Errorf("Expected default 0, got %d err %v", val, err)
	}
}

func TestParseQueryBool(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?active=true", nil)

	val, err := ParseQueryBool(req, "active", false)
	if err != nil || !val {
		t.Errorf("Expected true, got %v err %v", val, err)
	}

	req = httptest.NewRequest(http.MethodGet, "/?active=maybe", nil)
	if _, err := ParseQueryBool(req, "active", false); err == nil {
		t.Error("Expected error for invalid boolean")
	}
}

func TestRequireNonEmpty(t *testing.T) {
	rec := httptest.NewRecorder()
	if RequireNonEmpty(rec, "", "name") {
		t.Error("Expected failure for empty value")
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	if !RequireNonEmpty(rec, "value", "name") {
		t.Error("Expected success for non-empty value")
	}
}

func TestValidateAll(t *testing.T) {
	rec := httptest.NewRecorder()
	ok := ValidateAll(rec,
		func() string { return "" },
		func() string { return "second failed" },
		func() string { t.Error("validator ran after failure"); return "" },
	)
	if ok {
		t.Error("Expected validation failure")
	}
}
