package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func runHealth(t *testing.T, check Check) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/db", nil), rec)
	if err := HealthHandler(check)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec, body
}

func TestHealthHandler_Healthy(t *testing.T) {
	rec, body := runHealth(t, Check{
		Driver: "mongo",
		Ping:   func(context.Context) error { return nil },
	})
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if body["status"] != "healthy" || body["driver"] != "mongo" {
		t.Errorf("unexpected body %v", body)
	}
	if _, ok := body["pool"]; ok {
		t.Error("expected no pool stats without a Stats func")
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	rec, body := runHealth(t, Check{
		Driver: "postgres",
		Ping:   func(context.Context) error { return errors.New("connection refused") },
		Stats:  func() interface{} { return &PoolStats{MaxConns: 20} },
	})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if body["status"] != "unhealthy" || body["error"] != "connection refused" {
		t.Errorf("unexpected body %v", body)
	}
	pool, ok := body["pool"].(map[string]interface{})
	if !ok || pool["max_conns"] != float64(20) {
		t.Errorf("expected pool stats in body, got %v", body["pool"])
	}
}

func TestPoolStats_JSONTags(t *testing.T) {
	raw, err := json.Marshal(PoolStats{TotalConns: 1, AcquireDuration: "250ms", Healthy: true})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]interface{}
	_ = json.Unmarshal(raw, &m)
	for _, key := range []string{"total_conns", "idle_conns", "acquired_conns", "max_conns", "acquire_count", "acquire_duration", "healthy"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing key %q in %s", key, raw)
		}
	}
}
