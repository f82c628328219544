package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// RequestIDContextKey is a context key for storing request IDs.
type RequestIDContextKey struct{}

// requestIDHeaders are checked in order. Agent CLIs send their own
// correlation id, which keeps proxy logs joinable with the CLI's.
var requestIDHeaders = []string{"X-Request-ID", "X-Client-Request-ID"}

// maxRequestIDLength bounds client-supplied ids before they reach logs.
const maxRequestIDLength = 128

func getRequestID(r *http.Request) string {
	for _, header := range requestIDHeaders {
		if id := r.Header.Get(header); id != "" && len(id) <= maxRequestIDLength {
			return id
		}
	}
	if id, ok := r.Context().Value(RequestIDContextKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// RequestIDGeneration reads request ID from client header or context, generates if missing,
// and stores it in request context for downstream handlers.
func RequestIDGeneration(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), RequestIDContextKey{}, getRequestID(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDPropagation sets the X-Request-ID response header and adds the id
// to the request log line.
func RequestIDPropagation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requestID, ok := r.Context().Value(RequestIDContextKey{}).(string); ok && requestID != "" {
			// Set early to ensure it's present during recovery scenarios
			w.Header().Set("X-Request-ID", requestID)
			SetLogAttrs(r.Context(), slog.String("request_id", requestID))
		}

		next.ServeHTTP(w, r)
	})
}
