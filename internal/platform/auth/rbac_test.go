package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextWithRoles(e *echo.Echo, user string, roles ...string) echo.Context {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithIdentity(context.Background(), user, roles...))
	return e.NewContext(req, httptest.NewRecorder())
}

func okHandler(c echo.Context) error { return c.String(http.StatusOK, "ok") }

func TestRequireRole_Allowed(t *testing.T) {
	e := echo.New()
	c := contextWithRoles(e, "doc-1", RoleDoctor)

	if err := RequireRole(RoleDoctor)(okHandler)(c); err != nil {
		t.Fatalf("expected request to pass, got %v", err)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	e := echo.New()
	c := contextWithRoles(e, "pat-1", RolePatient)

	err := RequireRole(RoleDoctor)(okHandler)(c)
	if err == nil {
		t.Fatal("expected forbidden error")
	}
	if httpErr, ok := err.(*echo.HTTPError); !ok || httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	e := echo.New()
	c := contextWithRoles(e, "root", RoleAdmin)

	if err := RequireRole(RoleDoctor, RolePatient)(okHandler)(c); err != nil {
		t.Fatalf("expected admin to pass, got %v", err)
	}
}

func TestRequireRole_NoIdentity(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	if err := RequireRole(RolePatient)(okHandler)(c); err == nil {
		t.Fatal("expected anonymous caller to be rejected")
	}
}

func TestRequireSelf(t *testing.T) {
	tests := []struct {
		name    string
		user    string
		role    string
		param   string
		allowed bool
	}{
		{"own resource", "doc-1", RoleDoctor, "doc-1", true},
		{"other doctor", "doc-1", RoleDoctor, "doc-2", false},
		{"admin", "root", RoleAdmin, "doc-2", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			c := contextWithRoles(e, tt.user, tt.role)
			c.SetParamNames("doctorId")
			c.SetParamValues(tt.param)

			err := RequireSelf("doctorId")(okHandler)(c)
			if tt.allowed && err != nil {
				t.Errorf("expected allowed, got %v", err)
			}
			if !tt.allowed && err == nil {
				t.Error("expected forbidden")
			}
		})
	}
}

func TestUserIDFromContext(t *testing.T) {
	ctx := WithIdentity(context.Background(), "user-123")
	if got := UserIDFromContext(ctx); got != "user-123" {
		t.Errorf("expected user-123, got %q", got)
	}
	if got := UserIDFromContext(context.Background()); got != "" {
		t.Errorf("expected empty user id, got %q", got)
	}
}
