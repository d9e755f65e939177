package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func runSecurityHeaders(t *testing.T, opts SecurityOptions, handler echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/doctors/doc-1/slots?date=2024-03-04", nil)
	rec := httptest.NewRecorder()
	err := SecurityHeaders(opts)(handler)(e.NewContext(req, rec))
	return rec, err
}

func TestSecurityHeaders_StaticHeaders(t *testing.T) {
	rec, err := runSecurityHeaders(t, SecurityOptions{}, func(c echo.Context) error {
		return c.JSON(http.StatusOK, []string{})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, kv := range staticSecurityHeaders {
		if got := rec.Header().Get(kv[0]); got != kv[1] {
			t.Errorf("header %s: got %q, want %q", kv[0], got, kv[1])
		}
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("slot listings must not be cached by clients, got %q", got)
	}
}

func TestSecurityHeaders_HSTSOnlyWhenEnabled(t *testing.T) {
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }

	rec, _ := runSecurityHeaders(t, SecurityOptions{}, ok)
	if got := rec.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("expected no HSTS when disabled, got %q", got)
	}

	rec, _ = runSecurityHeaders(t, SecurityOptions{HSTS: true}, ok)
	if got := rec.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Errorf("unexpected HSTS header %q", got)
	}
}

func TestSecurityHeaders_SetOnHandlerError(t *testing.T) {
	rec, err := runSecurityHeaders(t, SecurityOptions{HSTS: true}, func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "doctor not found")
	})

	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected the handler's 404 to propagate, got %v", err)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers on error responses")
	}
}
