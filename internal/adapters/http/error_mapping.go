package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/kirillkom/notarization-api/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrForbidden):
		return http.StatusForbidden
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrConflict):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error  string `json:"error"`
	ID     string `json:"id,omitempty"`
	Status string `json:"status,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError hides internal causes behind a generic message; typed errors keep theirs.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		message = "internal server error"
	}
	writeJSON(w, status, errorResponse{Error: message})
}

// writePartialFailure reports a committed change whose notification failed.
// The body still names the affected entity so the client can continue.
func writePartialFailure(w http.ResponseWriter, r *http.Request, id, status string, err error) {
	slog.Error("notification_failed",
		"request_id", requestIDFromContext(r.Context()),
		"path", r.URL.Path,
		"id", id,
		"status", status,
		"error", err,
	)
	writeJSON(w, http.StatusInternalServerError, errorResponse{
		Error:  "saved, but the notification email could not be sent",
		ID:     id,
		Status: status,
	})
}
