package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// contextKey is the context key type for correlation IDs.
type contextKey string

const CorrelationIDKey = contextKey("correlation-id")

// Correlation is a middleware that generates or propagates correlation IDs.
// It checks for an existing X-Correlation-ID header and generates a new UUID
// if not present. Every envelope minted while handling the request carries
// this identifier, and so does every envelope derived from those downstream.
func Correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if _, err := uuid.Parse(correlationID); err != nil {
			correlationID = uuid.New().String()
		}

		w.Header().Set("X-Correlation-ID", correlationID)

		ctx := context.WithValue(r.Context(), CorrelationIDKey, correlationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithCorrelationID stores a correlation ID in the context. Used by the
// consumer and scheduler so background work logs the same way requests do.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

// GetCorrelationID extracts the correlation ID from the context.
// Returns empty string if not found.
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return id
	}
	return ""
}
