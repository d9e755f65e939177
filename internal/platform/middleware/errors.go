package middleware

import "github.com/labstack/echo/v4"

// jsonError writes {"error": {"kind", "message"}}, the same shape the API
// handlers use, unless the response has already been committed.
func jsonError(c echo.Context, status int, kind, message string) error {
	if c.Response().Committed {
		return nil
	}
	return c.JSON(status, map[string]interface{}{
		"error": map[string]string{"kind": kind, "message": message},
	})
}
