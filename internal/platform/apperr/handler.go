package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Body is the JSON error envelope written for every failed request.
type Body struct {
	Message string `json:"message"`
}

// HTTPErrorHandler returns an echo.HTTPErrorHandler that renders typed errors
// as {"message": ...} with the mapped status. Internal errors are logged with
// the request id and replaced by a generic message.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, msg := resolve(err)
		if status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, Body{Message: msg})
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}

func resolve(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if he.Message != nil {
			msg = fmt.Sprintf("%v", he.Message)
		}
		if he.Code >= http.StatusInternalServerError && he.Code != http.StatusGatewayTimeout && he.Code != http.StatusServiceUnavailable {
			msg = "internal server error"
		}
		return he.Code, msg
	}

	var ae *Error
	if errors.As(err, &ae) {
		status := HTTPStatus(ae.Kind)
		if status >= http.StatusInternalServerError {
			return status, "internal server error"
		}
		return status, ae.Message
	}

	return http.StatusInternalServerError, "internal server error"
}
