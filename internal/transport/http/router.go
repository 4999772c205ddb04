// Package httptransport assembles the HTTP surface: middleware chain, the
// document workflow routes, the admin-gated audit route, and the operational
// endpoints.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	workflowhandler "attesta/internal/workflow/handler"
	"attesta/pkg/platform/httputil"
	adminmw "attesta/pkg/platform/middleware/admin"
	authmw "attesta/pkg/platform/middleware/auth"
	"attesta/pkg/platform/middleware/metadata"
	requestmw "attesta/pkg/platform/middleware/request"
)

// HealthChecker reports whether one backing service is reachable.
type HealthChecker func(ctx context.Context) error

// Deps carries everything the router needs. Health checks may be nil for
// backends that are not configured.
type Deps struct {
	Workflow   *workflowhandler.Handler
	Validator  authmw.TokenValidator
	Revocation authmw.TokenRevocationChecker
	AdminToken string
	Logger     *slog.Logger

	HealthChecks map[string]HealthChecker
}

// NewRouter wires the middleware chain and all endpoints.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(requestmw.ID)
	r.Use(requestmw.Time)
	r.Use(metadata.ClientMetadata)

	r.Get("/healthz", handleHealthz(deps.HealthChecks))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Reviewer routes require a valid, unrevoked access token.
	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(deps.Validator, deps.Revocation, deps.Logger))
		deps.Workflow.Register(r)
	})

	// The audit trail bypasses reviewer auth: it belongs to operators, not
	// to any review stage.
	r.Group(func(r chi.Router) {
		r.Use(adminmw.RequireAdminToken(deps.AdminToken, deps.Logger))
		deps.Workflow.RegisterAdmin(r)
	})

	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func handleHealthz(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check(r.Context()); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
