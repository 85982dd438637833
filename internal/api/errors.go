package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/bannerbuildr/internal/bundle"
	"github.com/bannerbuildr/internal/mapping"
	"github.com/bannerbuildr/internal/preview"
	"github.com/bannerbuildr/internal/records"
	"github.com/bannerbuildr/internal/session"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// errBadRequest marks validation failures.
var errBadRequest = errors.New("bad request")

func badRequest(msg string) error {
	return &requestError{msg: msg}
}

type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }
func (e *requestError) Unwrap() error { return errBadRequest }

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, bundle.ErrMemberTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, records.ErrRecordNotFound),
		errors.Is(err, session.ErrTemplateNotFound),
		errors.Is(err, session.ErrVariationNotFound):
		return http.StatusNotFound
	case errors.Is(err, mapping.ErrMappingUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, preview.ErrSuperseded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c echo.Context, err error) error {
	status := statusFor(err)
	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Int("status", status).
		Msg("Request failed")
	return c.JSON(status, ErrorResponse{Error: err.Error()})
}
