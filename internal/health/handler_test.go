package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestDBChecker_Creation tests that the DB checker is created correctly.
func TestDBChecker_Creation(t *testing.T) {
	db := &sql.DB{}

	checker := NewDBChecker(db)
	if checker == nil {
		t.Fatal("expected checker to be non-nil")
	}

	if checker.db != db {
		t.Error("expected checker db to match provided db")
	}
}

type staticChecker struct {
	err error
}

func (s staticChecker) HealthCheck(context.Context) error {
	return s.err
}

func TestHandler_AllHealthy(t *testing.T) {
	h := NewHandler(map[string]Checker{
		"postgres": staticChecker{},
		"redis":    staticChecker{},
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["postgres"] != "ok" || body["redis"] != "ok" {
		t.Errorf("body = %v, want all ok", body)
	}
}

func TestHandler_UnhealthyDependency(t *testing.T) {
	h := NewHandler(map[string]Checker{
		"postgres": staticChecker{},
		"redis":    staticChecker{err: errors.New("connection refused")},
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["redis"] != "connection refused" {
		t.Errorf("redis status = %q, want the failure message", body["redis"])
	}
}
