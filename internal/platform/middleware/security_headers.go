package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// SecurityHeadersConfig tunes SecurityHeaders to the deployment.
type SecurityHeadersConfig struct {
	// HSTS adds Strict-Transport-Security. Leave it off for plain-HTTP dev servers.
	HSTS bool
	// AllowedOrigins are the browser origins the API serves through CORS.
	// With none, responses are restricted to the same origin.
	AllowedOrigins []string
}

// SecurityHeaders hardens responses of a JSON-only API. Anything under /api
// or /ws carries patient data and is never cached; /health and /metrics stay
// cacheable by health checkers.
func SecurityHeaders(cfg SecurityHeadersConfig) echo.MiddlewareFunc {
	corp := "same-origin"
	if len(cfg.AllowedOrigins) > 0 {
		corp = "cross-origin"
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cross-Origin-Resource-Policy", corp)
			if cfg.HSTS {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			path := c.Request().URL.Path
			if strings.HasPrefix(path, "/api") || path == "/ws" {
				h.Set("Cache-Control", "no-store")
				h.Set("Pragma", "no-cache")
			}
			return next(c)
		}
	}
}
