// Package admin gates operational endpoints (audit trail reads) behind a
// static admin token. Admin access grants no workflow privileges: transitions
// still pass through the same policy and gatekeeper checks as everyone else.
package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	request "attesta/pkg/platform/middleware/request"
)

func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("X-Admin-Token")
			// An unconfigured token disables the endpoint entirely; it must
			// never mean "no token required". Constant-time comparison to
			// prevent timing attacks.
			if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", request.GetRequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"admin token required"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
