package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hospbill/billing/internal/platform/apperr"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error     string   `json:"error"`
	Details   []string `json:"details,omitempty"`
	Available *int     `json:"available,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

const genericMessage = "internal server error"

// statusFor maps an error to its HTTP status and client-safe body.
func statusFor(err error) (int, ErrorBody) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := fmt.Sprint(he.Message)
		if he.Code >= 500 {
			msg = genericMessage
		}
		return he.Code, ErrorBody{Error: msg}
	}

	var ae *apperr.Error
	if !errors.As(err, &ae) {
		return http.StatusInternalServerError, ErrorBody{Error: genericMessage}
	}
	switch ae.Kind {
	case apperr.KindValidation, apperr.KindAllRowsInvalid:
		return http.StatusBadRequest, ErrorBody{Error: ae.Message, Details: ae.Details}
	case apperr.KindInsufficientStock:
		return http.StatusBadRequest, ErrorBody{Error: ae.Message, Available: ae.Available}
	case apperr.KindNotFound:
		return http.StatusNotFound, ErrorBody{Error: ae.Message}
	case apperr.KindConflict:
		return http.StatusConflict, ErrorBody{Error: ae.Message}
	default:
		return http.StatusInternalServerError, ErrorBody{Error: genericMessage}
	}
}

// ErrorHandler renders handler errors. Internal failures are logged with the
// request id and reported to the client without detail.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body := statusFor(err)
		if status >= 500 {
			body.RequestID = requestID(c)
			logger.Error().Err(err).
				Str("request_id", body.RequestID).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			logger.Warn().Err(werr).Msg("write error response")
		}
	}
}
