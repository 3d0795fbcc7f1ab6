// Package httputil provides JSON response helpers and the error object the
// HTTP boundary returns for every failure.
package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/palletline-systems/palletline-stack/internal/middleware"
)

// ErrorBody is the user-visible failure shape.
type ErrorBody struct {
	ErrorCode     string         `json:"error_code"`
	Message       string         `json:"message"`
	Details       map[string]any `json:"details,omitempty"`
	Retriable     bool           `json:"retriable"`
	HTTPStatus    int            `json:"http_status"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// WriteError writes the standard error object.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, retriable bool) {
	WriteErrorDetails(w, r, status, code, message, retriable, nil)
}

// WriteErrorDetails writes the standard error object with extra details.
func WriteErrorDetails(w http.ResponseWriter, r *http.Request, status int, code, message string, retriable bool, details map[string]any) {
	WriteJSON(w, status, ErrorBody{
		ErrorCode:     code,
		Message:       message,
		Details:       details,
		Retriable:     retriable,
		HTTPStatus:    status,
		CorrelationID: middleware.GetCorrelationID(r.Context()),
		Timestamp:     time.Now().UTC(),
	})
}
