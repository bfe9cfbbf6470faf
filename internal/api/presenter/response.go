package presenter

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/darmiel/kartei/internal/core"
	"github.com/darmiel/kartei/internal/reqctx"
	"github.com/darmiel/kartei/internal/service"
)

type ErrorResponse struct {
	Error         string         `json:"error"`
	Code          string         `json:"code,omitempty"`
	CorrelationID string         `json:"correlation_id"`
	Details       map[string]any `json:"details,omitempty"`
}

// NotYetAvailableResponse is sent with 202 when the eligibility gate is closed.
// Clients render a countdown from it.
type NotYetAvailableResponse struct {
	Status        string    `json:"status"`
	AvailableAt   time.Time `json:"available_at"`
	DaysRemaining int       `json:"days_remaining"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

const StatusNotYetAvailable = "not_yet_available"

func JSON(w http.ResponseWriter, r *http.Request, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("failed to write json response")
	}
}

func Error(w http.ResponseWriter, r *http.Request, msg string, status int) {
	JSON(w, r, ErrorResponse{
		Error:         msg,
		CorrelationID: reqctx.CorrelationID(r.Context()),
	}, status)
}

// Err renders err with the status and code derived from its type.
func Err(w http.ResponseWriter, r *http.Request, err error, short string) {
	var notYet *core.NotYetAvailableError
	if errors.As(err, &notYet) {
		JSON(w, r, NotYetAvailableResponse{
			Status:        StatusNotYetAvailable,
			AvailableAt:   notYet.AvailableAt.UTC(),
			DaysRemaining: notYet.DaysRemaining,
			CorrelationID: reqctx.CorrelationID(r.Context()),
		}, http.StatusAccepted)
		return
	}

	status := service.StatusFor(err)
	code := service.Code(err)

	msg := short + ": " + err.Error()
	if code == "internal" {
		// unknown errors may carry internals
		msg = short
	}

	var (
		validation *core.ValidationError
		compErr    *core.CompositionError
		limited    *core.RateLimitedError
		details    map[string]any
	)
	switch {
	case errors.As(err, &validation) && validation.Field != "":
		details = map[string]any{"field": validation.Field}
	case errors.As(err, &compErr) && compErr.Field != "":
		details = map[string]any{"field": compErr.Field}
	case errors.As(err, &limited):
		secs := int(math.Ceil(limited.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		details = map[string]any{"retry_after_seconds": secs}
	}

	JSON(w, r, ErrorResponse{
		Error:         msg,
		Code:          code,
		CorrelationID: reqctx.CorrelationID(r.Context()),
		Details:       details,
	}, status)
}
