package handler

// RESPONSE HELPERS:
// Every body this API sends is JSON with at least a "message" field:
//   {"message": "User created successfully", "data": {...}}
//   {"message": "Unable to delete the user avatar"}
//
// Handlers call writeJSON for successes and writeError for anything the
// service returned. writeError is the only place that turns error kinds
// into HTTP status codes.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/user-avatar-service/internal/apperror"
)

// MessageResponse is the body of every error and of message-only successes.
type MessageResponse struct {
	Message string `json:"message"`
}

// DataResponse carries a payload next to the message.
type DataResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data"`
}

type AvatarResponse struct {
	Message string `json:"message"`
	Avatar  string `json:"avatar"`
}

const msgInternal = "Internal server error"

// writeJSON sends data with the given status code.
// Headers and status must be written before the body.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; logging is all that is left.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps an error from the service layer to a status code:
//
//	ErrValidation → 400
//	ErrNotFound   → 404
//	ErrUpstream   → the upstream status, or 502 when there was none
//	anything else → 500 with a generic message
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		// Unknown errors may carry SQL, paths or hostnames; never echo them.
		writeJSON(w, http.StatusInternalServerError, MessageResponse{Message: msgInternal})
		return
	}

	status := http.StatusInternalServerError
	message := appErr.Message

	switch {
	case errors.Is(err, apperror.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, apperror.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperror.ErrUpstream):
		status = appErr.Status
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
	default:
		message = msgInternal
	}

	writeJSON(w, status, MessageResponse{Message: message})
}
