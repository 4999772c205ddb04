package workflow

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"attesta/internal/audit"
	"attesta/internal/document/models"
	"attesta/internal/policy"
	"attesta/internal/workflow/metrics"
	id "attesta/pkg/domain"
	dErrors "attesta/pkg/domain-errors"
	"attesta/pkg/platform/sentinel"
	txcontext "attesta/pkg/platform/tx"
	"attesta/pkg/requestcontext"
)

// DocumentStore is the record persistence the service writes through. Update
// is a compare-and-swap on the revision the caller loaded.
type DocumentStore interface {
	Create(ctx context.Context, record *models.Record) error
	FindByID(ctx context.Context, docID id.DocumentID) (*models.Record, error)
	Update(ctx context.Context, record *models.Record, expectedRevision int64) error
}

// AuditTrail receives one entry per attempt, success or denial.
type AuditTrail interface {
	Record(ctx context.Context, entry audit.Entry)
	List(ctx context.Context, docID id.DocumentID) ([]audit.Entry, error)
}

// Service binds the gatekeeper and the transition engine to persistence and
// the audit trail. Every write follows the same path: load, per-document
// mutex, gatekeeper, policy, pure mutation on a working copy, one
// compare-and-swap store write, audit.
type Service struct {
	store   DocumentStore
	trail   AuditTrail
	db      *sql.DB
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	locks   *lockTable
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTxBeginner makes the document write and its audit entry commit in one
// database transaction. Without it the audit write happens after the
// document write and stays best-effort.
func WithTxBeginner(db *sql.DB) Option {
	return func(s *Service) {
		s.db = db
	}
}

// New constructs a Service.
func New(store DocumentStore, trail AuditTrail, opts ...Option) *Service {
	s := &Service{
		store:  store,
		trail:  trail,
		logger: slog.Default(),
		tracer: otel.Tracer("attesta/workflow"),
		locks:  newLockTable(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VerifyInput is a stage decision from one of the three verification stages.
type VerifyInput struct {
	Role           id.Role
	Decision       models.Decision
	Notes          string
	CorrectionType models.CorrectionType
	Corrections    map[string]string
}

// CrossVerifyInput is the examiner's decision with itemized corrections.
type CrossVerifyInput struct {
	Decision    models.Decision
	Notes       string
	Corrections map[string]string
}

// FinalizeInput is the registrar's terminal decision.
type FinalizeInput struct {
	Decision models.Decision
	Remarks  string
	Lock     bool
}

// Submit creates a record at status submitted with every stage pending. It
// is the intake point for the external record-store collaborator.
func (s *Service) Submit(ctx context.Context, kind models.ServiceKind, fields, extra map[string]string) (*View, error) {
	if !kind.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown service kind %q", kind)
	}

	record := models.NewRecord(id.NewDocumentID(), kind, fields, requestcontext.Now(ctx))
	for k, v := range extra {
		record.Extra[k] = v
	}

	if err := s.store.Create(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "document already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create document")
	}

	s.logger.InfoContext(ctx, "document submitted",
		"document_id", record.ID,
		"service_kind", record.ServiceKind,
	)
	return buildView(record, requestcontext.Role(ctx)), nil
}

// Verify records a stage decision for the clerk, valuer, or surveyor.
func (s *Service) Verify(ctx context.Context, docID id.DocumentID, in VerifyInput) (*View, error) {
	return s.transition(ctx, docID, in.Role, "verify", audit.ActionVerified, policy.ActionVerify, in.Decision,
		func(work *models.Record, rp *policy.RolePolicy, now time.Time) error {
			return applyVerify(work, rp, requestcontext.ReviewerID(ctx), in.Decision, in.Notes, in.CorrectionType, in.Corrections, now)
		})
}

// CrossVerify records the examiner's decision across the full document.
func (s *Service) CrossVerify(ctx context.Context, docID id.DocumentID, in CrossVerifyInput) (*View, error) {
	return s.transition(ctx, docID, id.RoleExaminer, "cross_verify", audit.ActionCrossVerified, policy.ActionCrossVerify, in.Decision,
		func(work *models.Record, rp *policy.RolePolicy, now time.Time) error {
			return applyCrossVerify(work, rp, requestcontext.ReviewerID(ctx), in.Decision, in.Notes, in.Corrections, now)
		})
}

// Finalize records the registrar's terminal decision and optionally locks
// the record.
func (s *Service) Finalize(ctx context.Context, docID id.DocumentID, in FinalizeInput) (*View, error) {
	return s.transition(ctx, docID, id.RoleRegistrar, "finalize", audit.ActionFinalized, policy.ActionFinalize, in.Decision,
		func(work *models.Record, _ *policy.RolePolicy, now time.Time) error {
			return applyFinalize(work, requestcontext.ReviewerID(ctx), in.Decision, in.Remarks, in.Lock, now)
		})
}

// Resubmit reopens the rejected stage after the submitter reworked the
// document. It bypasses the role policy: resubmission belongs to the
// submitter, not to any review stage.
func (s *Service) Resubmit(ctx context.Context, docID id.DocumentID) (*View, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.resubmit",
		trace.WithAttributes(attribute.String("document.id", docID.String())))
	defer span.End()
	start := time.Now()

	release := s.locks.acquire(docID)
	defer release()

	record, err := s.load(ctx, docID)
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}
	before := record.Status

	work := record.Clone()
	now := requestcontext.Now(ctx)
	if err := applyResubmit(work, now); err != nil {
		s.emit(ctx, s.entry(ctx, work.ID, requestcontext.Role(ctx), audit.ActionResubmitted, before, before, "", false, err))
		s.metrics.IncrementDenial(string(dErrors.CodeOf(err)))
		return nil, s.fail(ctx, span, err)
	}

	entry := s.entry(ctx, work.ID, requestcontext.Role(ctx), audit.ActionResubmitted, before, work.Status, "", true, nil)
	if err := s.persist(ctx, work, record.Revision, entry); err != nil {
		entry.Success = false
		entry.AfterStatus = before
		entry.Reason = string(dErrors.CodeOf(err))
		s.emit(ctx, entry)
		return nil, s.fail(ctx, span, err)
	}

	s.metrics.ObserveTransitionLatency("resubmit", time.Since(start))
	s.logger.InfoContext(ctx, "document resubmitted",
		"document_id", work.ID,
		"status", work.Status,
	)
	return buildView(work, requestcontext.Role(ctx)), nil
}

// View returns the record filtered to the role's allow-list.
func (s *Service) View(ctx context.Context, docID id.DocumentID, role id.Role) (*View, error) {
	if _, err := policy.For(role); err != nil {
		return nil, err
	}

	record, err := s.load(ctx, docID)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, s.entry(ctx, record.ID, role, audit.ActionViewed, record.Status, record.Status, "", true, nil))
	return buildView(record, role), nil
}

// ListAudit returns the trail for one document, oldest first.
func (s *Service) ListAudit(ctx context.Context, docID id.DocumentID) ([]audit.Entry, error) {
	entries, err := s.trail.List(ctx, docID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit trail")
	}
	return entries, nil
}

// transition runs the shared write path for verify, cross-verify, and
// finalize.
func (s *Service) transition(
	ctx context.Context,
	docID id.DocumentID,
	role id.Role,
	operation string,
	action audit.Action,
	required policy.Action,
	decision models.Decision,
	mutate func(work *models.Record, rp *policy.RolePolicy, now time.Time) error,
) (*View, error) {
	ctx, span := s.tracer.Start(ctx, "workflow."+operation,
		trace.WithAttributes(
			attribute.String("document.id", docID.String()),
			attribute.String("reviewer.role", string(role)),
		))
	defer span.End()
	start := time.Now()

	release := s.locks.acquire(docID)
	defer release()

	record, err := s.load(ctx, docID)
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}
	before := record.Status

	// deny audits the attempted action under the role that attempted it,
	// which for an impersonation attempt is the caller's real role.
	deny := func(deniedRole id.Role, err error) (*View, error) {
		s.emit(ctx, s.entry(ctx, docID, deniedRole, action, before, before, decision, false, err))
		s.metrics.IncrementDenial(string(dErrors.CodeOf(err)))
		s.metrics.IncrementTransition(string(deniedRole), "denied")
		return nil, s.fail(ctx, span, err)
	}

	if actor := requestcontext.Role(ctx); actor != role {
		return deny(actor, dErrors.Newf(dErrors.CodeForbidden, "%s is the %s's operation", operation, role))
	}

	rp, err := policy.For(role)
	if err != nil {
		return deny(role, err)
	}
	if rp.Action != required {
		return deny(role, dErrors.Newf(dErrors.CodeForbidden, "role %s must use %s", role, rp.Action))
	}

	if err := CanReach(record, role); err != nil {
		return deny(role, err)
	}

	work := record.Clone()
	if err := mutate(work, rp, requestcontext.Now(ctx)); err != nil {
		return deny(role, err)
	}

	entry := s.entry(ctx, docID, role, action, before, work.Status, decision, true, nil)
	if err := s.persist(ctx, work, record.Revision, entry); err != nil {
		// The success entry is gone with the failed write (or its rolled
		// back transaction); leave a best-effort failure entry instead so
		// the attempt stays on the trail.
		entry.Success = false
		entry.AfterStatus = before
		entry.Reason = string(dErrors.CodeOf(err))
		s.emit(ctx, entry)
		return nil, s.fail(ctx, span, err)
	}

	s.metrics.IncrementTransition(string(role), string(decision))
	s.metrics.ObserveTransitionLatency(operation, time.Since(start))
	span.SetAttributes(attribute.String("document.status", string(work.Status)))
	s.logger.InfoContext(ctx, "stage decision recorded",
		"document_id", docID,
		"role", role,
		"decision", decision,
		"status", work.Status,
	)
	return buildView(work, role), nil
}

func (s *Service) load(ctx context.Context, docID id.DocumentID) (*models.Record, error) {
	record, err := s.store.FindByID(ctx, docID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load document")
	}
	return record, nil
}

// persist commits the working copy with a compare-and-swap and appends the
// audit entry; when a transaction beginner is configured both land in one
// transaction.
func (s *Service) persist(ctx context.Context, work *models.Record, expectedRevision int64, entry audit.Entry) error {
	if s.db == nil {
		if err := s.store.Update(ctx, work, expectedRevision); err != nil {
			return s.translateWriteErr(err)
		}
		s.emit(ctx, entry)
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to begin transaction")
	}
	defer tx.Rollback()

	txCtx := txcontext.WithTx(ctx, tx)
	if err := s.store.Update(txCtx, work, expectedRevision); err != nil {
		return s.translateWriteErr(err)
	}
	s.emit(txCtx, entry)

	if err := tx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to commit transaction")
	}
	return nil
}

func (s *Service) translateWriteErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrConflict):
		s.metrics.IncrementRevisionConflict()
		return dErrors.New(dErrors.CodePersistenceConflict, "document changed concurrently, reload and retry")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "document not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist document")
	}
}

func (s *Service) entry(
	ctx context.Context,
	docID id.DocumentID,
	role id.Role,
	action audit.Action,
	before, after models.Status,
	decision models.Decision,
	success bool,
	cause error,
) audit.Entry {
	entry := audit.Entry{
		Timestamp:    requestcontext.Now(ctx),
		DocumentID:   docID,
		ActorID:      requestcontext.ReviewerID(ctx),
		Role:         role,
		Action:       action,
		BeforeStatus: before,
		AfterStatus:  after,
		Decision:     decision,
		Success:      success,
		RequestID:    requestcontext.RequestID(ctx),
		ClientIP:     requestcontext.ClientIP(ctx),
		UserAgent:    requestcontext.UserAgent(ctx),
	}
	if cause != nil {
		entry.Reason = string(dErrors.CodeOf(cause))
	}
	return entry
}

func (s *Service) emit(ctx context.Context, entry audit.Entry) {
	s.trail.Record(ctx, entry)
}

func (s *Service) fail(ctx context.Context, span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, string(dErrors.CodeOf(err)))
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		s.logger.ErrorContext(ctx, "workflow operation failed", "error", err)
	}
	return err
}
