// Package request provides the request ID and request time middleware plus
// accessors. Applied first in the chain so every later middleware, handler,
// and audit entry shares one correlation ID and one timestamp.
package request

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"attesta/pkg/requestcontext"
)

// headerRequestID is honored when a trusted proxy already assigned an ID.
const headerRequestID = "X-Request-ID"

// ID assigns a request ID (reusing an inbound X-Request-ID when present) and
// echoes it on the response.
func ID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set(headerRequestID, requestID)
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Time pins a single wall-clock timestamp for the request so every store
// write and audit entry produced by one transition shares it.
func Time(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return requestcontext.RequestID(ctx)
}
