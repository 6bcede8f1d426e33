package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicrecords/records/internal/platform/auth"
)

// AuditEntry describes one access to patient data.
type AuditEntry struct {
	UserID       string
	UserRoles    []string
	ResourceType string
	PatientID    string
	Action       string // read, search, create, update, delete
	IPAddress    string
	Path         string
	Method       string
	Timestamp    time.Time
	RequestID    string
	StatusCode   int
}

var auditedPrefixes = []string{
	"/api/patient",
	"/api/medical_record",
	"/api/doctor",
}

// Audit logs who touched which patient data. It must run after routing and
// authentication so route params and the principal are available.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			if !isAuditablePath(path) {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if err != nil {
				status = statusFromError(err)
			}

			entry := AuditEntry{
				Timestamp:    time.Now().UTC(),
				Path:         path,
				Method:       req.Method,
				IPAddress:    c.RealIP(),
				StatusCode:   status,
				UserID:       auth.UserIDFromContext(req.Context()),
				UserRoles:    auth.RolesFromContext(req.Context()),
				Action:       auditAction(req.Method, path),
				ResourceType: extractResourceType(path),
				PatientID:    extractPatientID(c),
			}
			entry.RequestID, _ = c.Get("request_id").(string)

			logger.Info().
				Str("type", "phi_access").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("resource_type", entry.ResourceType).
				Str("patient_id", entry.PatientID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("phi_access")

			return err
		}
	}
}

func isAuditablePath(path string) bool {
	for _, p := range auditedPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func auditAction(method, path string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	if path == "/api/patients" || path == "/api/doctors" {
		return "search"
	}
	return "read"
}

// extractResourceType maps /api/medical_record/get/x to "medical_record".
func extractResourceType(path string) string {
	rest := strings.TrimPrefix(path, "/api/")
	if rest == path {
		return "unknown"
	}
	seg, _, _ := strings.Cut(rest, "/")
	seg = strings.TrimSuffix(seg, "s")
	if seg == "" {
		return "unknown"
	}
	return seg
}

// extractPatientID finds the patient a request is about from its route
// params or the patientId query parameter.
func extractPatientID(c echo.Context) string {
	if id := c.Param("patientId"); isUUIDLike(id) {
		return id
	}
	if strings.HasPrefix(c.Request().URL.Path, "/api/patient/") {
		if id := c.Param("id"); isUUIDLike(id) {
			return id
		}
	}
	if id := c.QueryParam("patientId"); isUUIDLike(id) {
		return id
	}
	return ""
}

func isUUIDLike(s string) bool {
	if s == "" {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
