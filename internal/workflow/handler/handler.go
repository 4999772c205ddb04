// Package handler wires the document workflow endpoints to the workflow
// service. Authorization state (reviewer, role, client metadata) arrives via
// the request context; the handler never trusts anything in the body for
// identity.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"attesta/internal/audit"
	"attesta/internal/document/models"
	"attesta/internal/workflow"
	id "attesta/pkg/domain"
	dErrors "attesta/pkg/domain-errors"
	"attesta/pkg/platform/httputil"
	"attesta/pkg/requestcontext"
)

// Service defines the workflow operations the handler depends on.
type Service interface {
	Submit(ctx context.Context, kind models.ServiceKind, fields, extra map[string]string) (*workflow.View, error)
	Verify(ctx context.Context, docID id.DocumentID, in workflow.VerifyInput) (*workflow.View, error)
	CrossVerify(ctx context.Context, docID id.DocumentID, in workflow.CrossVerifyInput) (*workflow.View, error)
	Finalize(ctx context.Context, docID id.DocumentID, in workflow.FinalizeInput) (*workflow.View, error)
	Resubmit(ctx context.Context, docID id.DocumentID) (*workflow.View, error)
	View(ctx context.Context, docID id.DocumentID, role id.Role) (*workflow.View, error)
	ListAudit(ctx context.Context, docID id.DocumentID) ([]audit.Entry, error)
}

// Handler wires document workflow endpoints to the workflow service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a workflow handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the document endpoints on the router. The router must run
// the auth middleware first.
func (h *Handler) Register(r chi.Router) {
	r.Post("/documents", h.HandleSubmit)
	r.Get("/documents/{id}", h.HandleView)
	r.Post("/documents/{id}/verify", h.HandleVerify)
	r.Post("/documents/{id}/cross-verify", h.HandleCrossVerify)
	r.Post("/documents/{id}/finalize", h.HandleFinalize)
	r.Post("/documents/{id}/resubmit", h.HandleResubmit)
}

// RegisterAdmin mounts the audit trail endpoint; the router must gate it
// behind the admin token middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/documents/{id}/audit", h.HandleAudit)
}

// HandleSubmit handles POST /documents.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if !requestcontext.Role(ctx).IsValid() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[SubmitRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	view, err := h.service.Submit(ctx, req.ParsedServiceKind(), req.Fields, req.Extra)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "document created",
		"request_id", requestID,
		"document_id", view.ID,
		"service_kind", view.ServiceKind,
	)
	httputil.WriteJSON(w, http.StatusCreated, FromView(view))
}

// HandleView handles GET /documents/{id}.
func (h *Handler) HandleView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	docID, role, ok := h.documentAndRole(w, r)
	if !ok {
		return
	}

	view, err := h.service.View(ctx, docID, role)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromView(view))
}

// HandleVerify handles POST /documents/{id}/verify.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	docID, role, ok := h.documentAndRole(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[VerifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	view, err := h.service.Verify(ctx, docID, workflow.VerifyInput{
		Role:           role,
		Decision:       req.ParsedDecision(),
		Notes:          req.Notes,
		CorrectionType: models.CorrectionType(req.CorrectionType),
		Corrections:    req.Corrections,
	})
	if err != nil {
		h.logDenied(ctx, "verify", requestID, docID, role, err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "document verified",
		"request_id", requestID,
		"document_id", docID,
		"role", role,
		"decision", req.ParsedDecision(),
		"status", view.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromView(view))
}

// HandleCrossVerify handles POST /documents/{id}/cross-verify.
func (h *Handler) HandleCrossVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	docID, role, ok := h.documentAndRole(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CrossVerifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	view, err := h.service.CrossVerify(ctx, docID, workflow.CrossVerifyInput{
		Decision:    req.ParsedDecision(),
		Notes:       req.Notes,
		Corrections: req.Corrections,
	})
	if err != nil {
		h.logDenied(ctx, "cross-verify", requestID, docID, role, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromView(view))
}

// HandleFinalize handles POST /documents/{id}/finalize.
func (h *Handler) HandleFinalize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	docID, role, ok := h.documentAndRole(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[FinalizeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	view, err := h.service.Finalize(ctx, docID, workflow.FinalizeInput{
		Decision: req.ParsedDecision(),
		Remarks:  req.Remarks,
		Lock:     req.Lock,
	})
	if err != nil {
		h.logDenied(ctx, "finalize", requestID, docID, role, err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "document finalized",
		"request_id", requestID,
		"document_id", docID,
		"decision", req.ParsedDecision(),
		"locked", view.Locked,
		"status", view.Status,
	)
	httputil.WriteJSON(w, http.StatusOK, FromView(view))
}

// HandleResubmit handles POST /documents/{id}/resubmit.
func (h *Handler) HandleResubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	docID, _, ok := h.documentAndRole(w, r)
	if !ok {
		return
	}

	view, err := h.service.Resubmit(ctx, docID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromView(view))
}

// HandleAudit handles GET /documents/{id}/audit.
func (h *Handler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	docID, err := id.ParseDocumentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	entries, err := h.service.ListAudit(ctx, docID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromAuditEntries(docID.String(), entries))
}

// documentAndRole extracts the path document ID and the authenticated role.
func (h *Handler) documentAndRole(w http.ResponseWriter, r *http.Request) (id.DocumentID, id.Role, bool) {
	docID, err := id.ParseDocumentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.DocumentID{}, "", false
	}

	role := requestcontext.Role(r.Context())
	if !role.IsValid() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.DocumentID{}, "", false
	}
	return docID, role, true
}

func (h *Handler) logDenied(ctx context.Context, operation, requestID string, docID id.DocumentID, role id.Role, err error) {
	h.logger.WarnContext(ctx, "workflow operation denied",
		"request_id", requestID,
		"operation", operation,
		"document_id", docID,
		"role", role,
		"code", dErrors.CodeOf(err),
	)
}
