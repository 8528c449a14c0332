package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// Two response shapes leave the API:
//
//	{"data": ..., "notifications": [{"type":"success","message":"..."}]}
//	{"error": "not_found", "message": "pen not found with id 7"}
//
// The envelope carries the result of a fail-soft PenService call together
// with the toasts it raised. ErrorResponse is for requests that never reach
// the service (bad JSON, bad id, missing auth).

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/codecanvas/internal/apperror"
	"github.com/sakif/codecanvas/internal/notify"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"` // Human-readable description
}

// Envelope wraps a service result with the toasts raised while producing it.
type Envelope struct {
	Data          any            `json:"data"`
	Notifications []notify.Toast `json:"notifications"`
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set before the body. Once Encode writes, the
// headers are on the wire and later changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeEnvelope drains the request's toasts into an Envelope around data.
func writeEnvelope(w http.ResponseWriter, r *http.Request, status int, data any) {
	var toasts []notify.Toast
	if c := notify.FromContext(r.Context()); c != nil {
		toasts = c.Drain()
	}
	if toasts == nil {
		toasts = []notify.Toast{}
	}
	writeJSON(w, status, Envelope{Data: data, Notifications: toasts})
}

// errorStatus maps a domain error to an HTTP status and error type.
//
// errors.Is walks the whole chain, so a service error like
//
//	fmt.Errorf("service/auth: %w", apperror.Unauthorized("..."))
//
// still maps to 401.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// WHY HERE AND NOT IN THE SERVICE?
// The service layer should not know about HTTP status codes. The same
// apperror values are rendered as JSON here and as form errors by the page
// handlers.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, errorType := errorStatus(err)
		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: appErr.Message,
		})
		return
	}

	// Unknown error: never expose internal details (SQL, paths) to clients.
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// userMessage is the text shown to a user for err on an HTML page.
func userMessage(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "Something went wrong. Please try again."
}
