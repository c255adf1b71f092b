package handler

// Every JSON error response has the same shape:
//
//	{"error": "not_found", "message": "subscription not found with id 12"}
//
// "error" is a machine-readable kind derived from the apperror sentinel; "message" is the
// AppError's client-safe text. Errors that are not AppErrors become a generic 500 so internal
// details never leak.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/panchang/internal/apperror"
)

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// MessageResponse is the body of simple acknowledgements.
type MessageResponse struct {
	Message string `json:"message"`
}

// writeJSON sets headers and status before encoding the body; nothing can be changed after
// the first write.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeRawJSON writes an already-encoded JSON document.
func writeRawJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// errorStatus maps an error's apperror kind to its HTTP status and kind name.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrUpstream):
		return http.StatusInternalServerError, "upstream_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError translates a service error into an HTTP response.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, kind := errorStatus(err)
		writeJSON(w, status, ErrorResponse{Error: kind, Message: appErr.Message})
		return
	}

	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}
