package middleware

import (
	"github.com/labstack/echo/v4"
)

// SecurityOptions toggles the headers that depend on how the server is
// deployed.
type SecurityOptions struct {
	// HSTS sends Strict-Transport-Security. Leave it off for plain-HTTP
	// development servers.
	HSTS bool
}

var staticSecurityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"X-XSS-Protection", "0"},
	// JSON only: nothing to load, nothing to embed.
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Referrer-Policy", "no-referrer"},
	{"Permissions-Policy", "camera=(), microphone=(), geolocation=()"},
	// Slot listings go stale as soon as someone books.
	{"Cache-Control", "no-store"},
}

// SecurityHeaders sets the response headers before the handler runs, so
// error responses carry them too.
func SecurityHeaders(opts SecurityOptions) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for _, kv := range staticSecurityHeaders {
				h.Set(kv[0], kv[1])
			}
			if opts.HSTS {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			return next(c)
		}
	}
}
