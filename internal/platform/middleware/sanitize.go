package middleware

import (
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicrecords/records/internal/platform/apperr"
)

const maxHeaderValueSize = 8192

var (
	// Logged only; queries are parameterized.
	sqlPattern    = regexp.MustCompile(`(?i)('+\s*;\s*DROP\b|UNION\s+SELECT\b|'\s+OR\s+1\s*=\s*1)`)
	scriptPattern = regexp.MustCompile(`(?i)(<script|javascript\s*:)`)
)

// Sanitize rejects requests carrying path traversal, null bytes, header
// injection or script payloads in the query string.
func Sanitize(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			raw := req.URL.RawPath
			if raw == "" {
				raw = req.URL.Path
			}
			if hasTraversal(req.URL.Path) || hasTraversal(raw) {
				return apperr.Validation("invalid request path")
			}
			if hasNullByte(req.URL.Path) || hasNullByte(raw) {
				return apperr.Validation("invalid request path")
			}

			for name, values := range req.Header {
				for _, v := range values {
					if len(v) > maxHeaderValueSize {
						return apperr.Validation("header %s is too large", name)
					}
					if strings.ContainsAny(v, "\r\n") {
						return apperr.Validation("invalid header %s", name)
					}
				}
			}

			for key, values := range req.URL.Query() {
				if hasNullByte(key) || scriptPattern.MatchString(key) {
					return apperr.Validation("invalid query parameter")
				}
				for _, v := range values {
					if hasNullByte(v) || scriptPattern.MatchString(v) {
						return apperr.Validation("invalid value for query parameter %s", key)
					}
					if sqlPattern.MatchString(v) {
						logger.Warn().
							Str("param", key).
							Str("path", req.URL.Path).
							Str("remote_ip", c.RealIP()).
							Msg("suspicious query parameter")
					}
				}
			}
			return next(c)
		}
	}
}

func hasTraversal(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(s, "..") || strings.Contains(lower, "%2e%2e") || strings.Contains(lower, "%252e")
}

func hasNullByte(s string) bool {
	return strings.ContainsRune(s, '\x00') || strings.Contains(strings.ToLower(s), "%00")
}
