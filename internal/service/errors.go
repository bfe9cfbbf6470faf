package service

import (
	"errors"
	"net/http"
	"strings"

	"github.com/darmiel/kartei/internal/core"
)

// HTTPError represents an error with an associated HTTP status code.
// It overrides the status StatusFor would derive from the wrapped error.
type HTTPError struct {
	StatusCode int
	Wrapped    error
}

func (e HTTPError) Error() string {
	return e.Wrapped.Error()
}

func (e HTTPError) Unwrap() error {
	return e.Wrapped
}

func httpError(statusCode int, err error) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Wrapped:    err,
	}
}

// StatusFor maps the error taxonomy to an HTTP status code.
func StatusFor(err error) int {
	var (
		httpErr      *HTTPError
		authErr      *core.AuthenticationError
		permErr      *core.PermissionError
		notEnrolled  *core.NotEnrolledError
		tplMissing   *core.TemplateMissingError
		missingPhoto *core.MissingPhotoError
		notYet       *core.NotYetAvailableError
		compErr      *core.CompositionError
		validation   *core.ValidationError
		conflict     *core.ConflictError
		limited      *core.RateLimitedError
		unavailable  *core.UnavailableError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &httpErr):
		return httpErr.StatusCode
	case errors.As(err, &authErr):
		return http.StatusUnauthorized
	case errors.As(err, &permErr):
		return http.StatusForbidden
	case errors.As(err, &notYet):
		return http.StatusAccepted
	case errors.As(err, &notEnrolled), errors.As(err, &tplMissing), errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &missingPhoto), errors.As(err, &validation):
		return http.StatusUnprocessableEntity
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &limited):
		return http.StatusTooManyRequests
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &compErr):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Code returns a stable machine readable error code for API clients.
func Code(err error) string {
	var (
		httpErr      *HTTPError
		authErr      *core.AuthenticationError
		permErr      *core.PermissionError
		notEnrolled  *core.NotEnrolledError
		tplMissing   *core.TemplateMissingError
		missingPhoto *core.MissingPhotoError
		notYet       *core.NotYetAvailableError
		compErr      *core.CompositionError
		validation   *core.ValidationError
		conflict     *core.ConflictError
		limited      *core.RateLimitedError
		unavailable  *core.UnavailableError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &httpErr):
		// e.g. "request_entity_too_large"
		return strings.ToLower(strings.ReplaceAll(http.StatusText(httpErr.StatusCode), " ", "_"))
	case errors.As(err, &authErr):
		return "not_authenticated"
	case errors.As(err, &permErr):
		return "permission_denied"
	case errors.As(err, &notYet):
		return "not_yet_available"
	case errors.As(err, &notEnrolled):
		return "not_enrolled"
	case errors.As(err, &tplMissing):
		return "template_missing"
	case errors.As(err, &missingPhoto):
		return "missing_photo"
	case errors.As(err, &validation):
		return "invalid_input"
	case errors.As(err, &conflict):
		return "conflict"
	case errors.As(err, &limited):
		return "rate_limited"
	case errors.As(err, &unavailable):
		return "unavailable"
	case errors.As(err, &compErr):
		return "composition_failed"
	case errors.Is(err, core.ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
