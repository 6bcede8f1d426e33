package middleware

import (
	"errors"

	"github.com/labstack/echo/v4"

	"github.com/clinicrecords/records/internal/platform/apperr"
)

// statusFromError predicts the status apperr.HTTPErrorHandler writes for err.
func statusFromError(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return apperr.HTTPStatus(apperr.KindOf(err))
}
