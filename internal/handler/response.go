package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON / writeError so the API has one
// error shape:
//
//	{"error": "conflict", "message": "profile conflict: username alice is taken"}
//
// Validation errors also carry the offending field:
//
//	{"error": "validation_error", "message": "username is required", "field": "username"}

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/ecochallenge/internal/apperror"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable type (e.g. "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Set for validation errors
}

// writeJSON sends data as JSON with the given status.
//
// HEADER ORDER MATTERS:
// Headers and status go out before the body. Anything set after the first
// Write is silently dropped.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// The status is already on the wire; logging is all that is left.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to its HTTP status.
//
// ERROR MAPPING:
//
//	ErrValidation         → 400
//	ErrForbidden          → 403
//	ErrNotFound           → 404
//	ErrConflict (incl. AlreadyVoted, AlreadyExists) → 409
//	ErrStorage / unknown  → 500, generic message
//
// Storage errors carry driver text in their cause. Only AppError.Message is
// ever shown to the client.
func writeError(w http.ResponseWriter, err error) {
	status, body := errorResponse(err)
	writeJSON(w, status, body)
}

func errorResponse(err error) (int, ErrorResponse) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		}
	}

	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: appErr.Message, Field: appErr.Field}
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, ErrorResponse{Error: "forbidden", Message: appErr.Message}
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "not_found", Message: appErr.Message}
	case errors.Is(err, apperror.ErrAlreadyVoted):
		return http.StatusConflict, ErrorResponse{Error: "already_voted", Message: appErr.Message}
	case errors.Is(err, apperror.ErrAlreadyExists):
		return http.StatusConflict, ErrorResponse{Error: "already_exists", Message: appErr.Message}
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, ErrorResponse{Error: "conflict", Message: appErr.Message}
	}

	return http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	}
}

// decodeJSON reads a single JSON object from r into v. Unknown fields are
// rejected so typos in field names surface as 400s instead of silent no-ops.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperror.ValidationFailed("body", "invalid JSON body")
	}
	return nil
}
