package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// HasRole reports whether the principal in ctx holds role. Admins hold every role.
func HasRole(ctx context.Context, role string) bool {
	for _, has := range RolesFromContext(ctx) {
		if has == role || has == RoleAdmin {
			return true
		}
	}
	return false
}

// RequireRole returns middleware that checks if the user has at least one of the specified roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			for _, required := range roles {
				if HasRole(ctx, required) {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// CanAccessPatient reports whether the principal may read data belonging to
// patientID. Doctors and admins see every patient, patients only themselves.
func CanAccessPatient(ctx context.Context, patientID string) bool {
	if HasRole(ctx, RoleDoctor) {
		return true
	}
	for _, has := range RolesFromContext(ctx) {
		if has == RolePatient {
			return UserIDFromContext(ctx) == patientID
		}
	}
	return false
}

// RequirePatientAccess guards routes whose path parameter param holds a
// patient id.
func RequirePatientAccess(param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !CanAccessPatient(c.Request().Context(), c.Param(param)) {
				return echo.NewHTTPError(http.StatusForbidden, "access to this patient is not allowed")
			}
			return next(c)
		}
	}
}
