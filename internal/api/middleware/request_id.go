package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// RequestIDMiddleware adopts an incoming X-Request-ID or mints a new UUID,
// exposing it through the request context and echoing it on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		r = r.WithContext(context.WithValue(r.Context(), RequestIDContextKey, id))
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// GetRequestID extracts the request ID stashed by RequestIDMiddleware.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDContextKey).(string); ok {
		return id
	}
	return ""
}
