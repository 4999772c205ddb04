package workflow

import (
	"bytes"
	"context"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"attesta/internal/audit"
	auditmem "attesta/internal/audit/store/memory"
	"attesta/internal/document/models"
	"attesta/internal/document/store"
	"attesta/internal/policy"
	id "attesta/pkg/domain"
	dErrors "attesta/pkg/domain-errors"
	"attesta/pkg/platform/sentinel"
	"attesta/pkg/requestcontext"
)

type serviceFixture struct {
	service *Service
	store   *store.InMemoryStore
	trail   *audit.Emitter
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	docs := store.NewInMemoryStore()
	emitter := audit.NewEmitter(auditmem.New(), logger)
	svc := New(docs, emitter, WithLogger(logger))
	return &serviceFixture{service: svc, store: docs, trail: emitter}
}

func (f *serviceFixture) submit(t *testing.T, kind models.ServiceKind, fields map[string]string) id.DocumentID {
	t.Helper()
	view, err := f.service.Submit(roleCtx(id.RoleClerk), kind, fields, nil)
	require.NoError(t, err)
	return view.ID
}

func roleCtx(role id.Role) context.Context {
	return requestcontext.WithReviewer(context.Background(), id.NewReviewerID(), role)
}

func TestService_VerifyApproval(t *testing.T) {
	f := newServiceFixture(t)
	docID := f.submit(t, models.KindSaleDeed, map[string]string{policy.FieldTitle: "Deed of Sale"})

	ctx := roleCtx(id.RoleClerk)
	view, err := f.service.Verify(ctx, docID, VerifyInput{
		Role:     id.RoleClerk,
		Decision: models.DecisionApproved,
		Notes:    "identity checked",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusUnderReview, view.Status)
	assert.Equal(t, models.DecisionApproved, view.Stages[id.RoleClerk].Decision)
	assert.Equal(t, requestcontext.ReviewerID(ctx), view.Stages[id.RoleClerk].ReviewerID)

	// Valuer is now reachable.
	_, err = f.service.Verify(roleCtx(id.RoleValuer), docID, VerifyInput{
		Role:     id.RoleValuer,
		Decision: models.DecisionApproved,
	})
	require.NoError(t, err)
}

func TestService_RejectionParksPipeline(t *testing.T) {
	f := newServiceFixture(t)
	docID := f.submit(t, models.KindSaleDeed, nil)

	_, err := f.service.Verify(roleCtx(id.RoleClerk), docID, VerifyInput{Role: id.RoleClerk, Decision: models.DecisionApproved})
	require.NoError(t, err)

	view, err := f.service.Verify(roleCtx(id.RoleValuer), docID, VerifyInput{
		Role:     id.RoleValuer,
		Decision: models.DecisionRejected,
		Notes:    "missing ID",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusNeedsCorrection, view.Status)

	// Surveyor is blocked even though its own prerequisite approved.
	_, err = f.service.Verify(roleCtx(id.RoleSurveyor), docID, VerifyInput{Role: id.RoleSurveyor, Decision: models.DecisionApproved})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodePrerequisiteNotMet))
}

func TestService_FinalizeAndLock(t *testing.T) {
	f := newServiceFixture(t)
	docID := f.submit(t, models.KindSaleDeed, nil)
	f.approveUpstream(t, docID)

	view, err := f.service.Finalize(roleCtx(id.RoleRegistrar), docID, FinalizeInput{
		Decision: models.DecisionApproved,
		Remarks:  "registered",
		Lock:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, view.Status)
	assert.True(t, view.Locked)
	assert.False(t, view.Stages[id.RoleRegistrar].ReviewerID.IsNil())

	// Nothing moves a locked record, and the denial is explicit.
	_, err = f.service.CrossVerify(roleCtx(id.RoleExaminer), docID, CrossVerifyInput{Decision: models.DecisionApproved})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeRecordLocked))

	_, err = f.service.Finalize(roleCtx(id.RoleRegistrar), docID, FinalizeInput{Decision: models.DecisionApproved, Lock: true})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeRecordLocked))
}

func TestService_UnauthorizedFieldIsAuditedAndHarmless(t *testing.T) {
	f := newServiceFixture(t)
	docID := f.submit(t, models.KindSaleDeed, map[string]string{policy.FieldTrusteeName: "original trustee"})

	_, err := f.service.Verify(roleCtx(id.RoleClerk), docID, VerifyInput{Role: id.RoleClerk, Decision: models.DecisionApproved})
	require.NoError(t, err)

	_, err = f.service.Verify(roleCtx(id.RoleSurveyor), docID, VerifyInput{
		Role:           id.RoleSurveyor,
		Decision:       models.DecisionApproved,
		CorrectionType: models.CorrectionLand,
		Corrections:    map[string]string{policy.FieldTrusteeName: "someone else"},
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorizedField))

	record, ferr := f.store.FindByID(context.Background(), docID)
	require.NoError(t, ferr)
	assert.Equal(t, "original trustee", record.Fields[policy.FieldTrusteeName])
	assert.Equal(t, models.DecisionPending, record.Stage(id.RoleSurveyor).Decision)

	entries, lerr := f.service.ListAudit(context.Background(), docID)
	require.NoError(t, lerr)
	var denied []audit.Entry
	for _, entry := range entries {
		if !entry.Success {
			denied = append(denied, entry)
		}
	}
	require.Len(t, denied, 1)
	assert.Equal(t, string(dErrors.CodeUnauthorizedField), denied[0].Reason)
	assert.Equal(t, id.RoleSurveyor, denied[0].Role)
}

func TestService_BlindRetryLeavesStateUnchanged(t *testing.T) {
	f := newServiceFixture(t)
	docID := f.submit(t, models.KindSaleDeed, nil)

	_, err := f.service.Verify(roleCtx(id.RoleClerk), docID, VerifyInput{Role: id.RoleClerk, Decision: models.DecisionApproved})
	require.NoError(t, err)
	before, err := f.store.FindByID(context.Background(), docID)
	require.NoError(t, err)

	_, err = f.service.Verify(roleCtx(id.RoleClerk), docID, VerifyInput{Role: id.RoleClerk, Decision: models.DecisionRejected})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyDecided))

	after, err := f.store.FindByID(context.Background(), docID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestService_RoleMustUseItsOperation(t *testing.T) {
	f := newServiceFixture(t)
	docID := f.submit(t, models.KindSaleDeed, nil)

	_, err := f.service.Verify(roleCtx(id.RoleExaminer), docID, VerifyInput{Role: id.RoleExaminer, Decision: models.DecisionApproved})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = f.service.Verify(roleCtx(id.RoleRegistrar), docID, VerifyInput{Role: id.RoleRegistrar, Decision: models.DecisionApproved})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	// Both refused attempts land on the trail as denials.
	denied := f.deniedEntries(t, docID)
	require.Len(t, denied, 2)
	for _, entry := range denied {
		assert.Equal(t, string(dErrors.CodeForbidden), entry.Reason)
		assert.Equal(t, audit.ActionVerified, entry.Action)
	}
	assert.Equal(t, id.RoleExaminer, denied[0].Role)
	assert.Equal(t, id.RoleRegistrar, denied[1].Role)
}

func TestService_ImpersonationDenialIsAudited(t *testing.T) {
	f := newServiceFixture(t)
	docID := f.submit(t, models.KindSaleDeed, nil)

	// A clerk invoking the examiner's operation is denied under the clerk's
	// own role.
	_, err := f.service.CrossVerify(roleCtx(id.RoleClerk), docID, CrossVerifyInput{Decision: models.DecisionApproved})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	denied := f.deniedEntries(t, docID)
	require.Len(t, denied, 1)
	assert.Equal(t, string(dErrors.CodeForbidden), denied[0].Reason)
	assert.Equal(t, id.RoleClerk, denied[0].Role)
	assert.Equal(t, audit.ActionCrossVerified, denied[0].Action)
	assert.Equal(t, denied[0].BeforeStatus, denied[0].AfterStatus)
}

// conflictingStore forces every update to fail the revision check, as if
// another instance always won the race.
type conflictingStore struct {
	*store.InMemoryStore
}

func (s *conflictingStore) Update(ctx context.Context, record *models.Record, expectedRevision int64) error {
	return sentinel.ErrConflict
}

func TestService_PersistFailureIsAudited(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	docs := &conflictingStore{InMemoryStore: store.NewInMemoryStore()}
	emitter := audit.NewEmitter(auditmem.New(), logger)
	svc := New(docs, emitter, WithLogger(logger))

	view, err := svc.Submit(roleCtx(id.RoleClerk), models.KindSaleDeed, nil, nil)
	require.NoError(t, err)

	_, err = svc.Verify(roleCtx(id.RoleClerk), view.ID, VerifyInput{Role: id.RoleClerk, Decision: models.DecisionApproved})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodePersistenceConflict))

	entries, err := svc.ListAudit(context.Background(), view.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
	assert.Equal(t, string(dErrors.CodePersistenceConflict), entries[0].Reason)
	assert.Equal(t, audit.ActionVerified, entries[0].Action)
	assert.Equal(t, entries[0].BeforeStatus, entries[0].AfterStatus)
}

func TestService_ViewFiltersFieldsByRole(t *testing.T) {
	f := newServiceFixture(t)
	docID := f.submit(t, models.KindSaleDeed, map[string]string{
		policy.FieldTitle:       "Deed of Sale",
		policy.FieldAmount:      "100000",
		policy.FieldTrusteeName: "trustee",
		policy.FieldLandExtent:  "2 acres",
	})

	clerkView, err := f.service.View(roleCtx(id.RoleClerk), docID, id.RoleClerk)
	require.NoError(t, err)
	assert.NotContains(t, clerkView.Fields, policy.FieldAmount)
	assert.NotContains(t, clerkView.Fields, policy.FieldLandExtent)

	registrarView, err := f.service.View(roleCtx(id.RoleRegistrar), docID, id.RoleRegistrar)
	require.NoError(t, err)
	assert.Contains(t, registrarView.Fields, policy.FieldAmount)
	assert.Contains(t, registrarView.Fields, policy.FieldTrusteeName)
}

func TestService_ResubmitReopensPipeline(t *testing.T) {
	f := newServiceFixture(t)
	docID := f.submit(t, models.KindSaleDeed, nil)

	_, err := f.service.Verify(roleCtx(id.RoleClerk), docID, VerifyInput{Role: id.RoleClerk, Decision: models.DecisionApproved})
	require.NoError(t, err)
	_, err = f.service.Verify(roleCtx(id.RoleValuer), docID, VerifyInput{Role: id.RoleValuer, Decision: models.DecisionRejected, Notes: "stale valuation"})
	require.NoError(t, err)

	view, err := f.service.Resubmit(roleCtx(id.RoleClerk), docID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, view.Status)
	assert.Equal(t, models.DecisionPending, view.Stages[id.RoleValuer].Decision)

	// The valuer can now decide again.
	_, err = f.service.Verify(roleCtx(id.RoleValuer), docID, VerifyInput{Role: id.RoleValuer, Decision: models.DecisionApproved})
	require.NoError(t, err)
}

func TestService_ConcurrentVerifySameStage(t *testing.T) {
	f := newServiceFixture(t)
	docID := f.submit(t, models.KindSaleDeed, nil)

	const attempts = 32
	var successes, decidedOrConflict atomic.Int64
	var g errgroup.Group
	for range attempts {
		g.Go(func() error {
			_, err := f.service.Verify(roleCtx(id.RoleClerk), docID, VerifyInput{Role: id.RoleClerk, Decision: models.DecisionApproved})
			switch {
			case err == nil:
				successes.Add(1)
			case dErrors.HasCode(err, dErrors.CodeAlreadyDecided), dErrors.HasCode(err, dErrors.CodePersistenceConflict):
				decidedOrConflict.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(1), successes.Load())
	assert.Equal(t, int64(attempts-1), decidedOrConflict.Load())
}

func TestService_AuditReplayMatchesLiveStatus(t *testing.T) {
	f := newServiceFixture(t)
	docID := f.submit(t, models.KindSaleDeed, nil)

	checkReplay := func() {
		t.Helper()
		record, err := f.store.FindByID(context.Background(), docID)
		require.NoError(t, err)
		entries, err := f.service.ListAudit(context.Background(), docID)
		require.NoError(t, err)
		assert.Equal(t, record.Status, ReplayStatus(entries))
	}

	steps := []func() (*View, error){
		func() (*View, error) {
			return f.service.Verify(roleCtx(id.RoleClerk), docID, VerifyInput{Role: id.RoleClerk, Decision: models.DecisionApproved})
		},
		func() (*View, error) {
			return f.service.Verify(roleCtx(id.RoleValuer), docID, VerifyInput{Role: id.RoleValuer, Decision: models.DecisionRejected})
		},
		func() (*View, error) { return f.service.Resubmit(roleCtx(id.RoleClerk), docID) },
		func() (*View, error) {
			return f.service.Verify(roleCtx(id.RoleValuer), docID, VerifyInput{Role: id.RoleValuer, Decision: models.DecisionApproved})
		},
		func() (*View, error) {
			return f.service.Verify(roleCtx(id.RoleSurveyor), docID, VerifyInput{Role: id.RoleSurveyor, Decision: models.DecisionApproved})
		},
		func() (*View, error) {
			return f.service.CrossVerify(roleCtx(id.RoleExaminer), docID, CrossVerifyInput{Decision: models.DecisionApproved})
		},
		func() (*View, error) {
			return f.service.Finalize(roleCtx(id.RoleRegistrar), docID, FinalizeInput{Decision: models.DecisionApproved, Lock: true})
		},
	}
	checkReplay()
	for _, step := range steps {
		_, err := step()
		require.NoError(t, err)
		checkReplay()
	}

	// Denials do not disturb the replay either.
	_, err := f.service.Verify(roleCtx(id.RoleClerk), docID, VerifyInput{Role: id.RoleClerk, Decision: models.DecisionApproved})
	require.Error(t, err)
	checkReplay()
}

func TestService_SubmitRejectsUnknownKind(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.service.Submit(roleCtx(id.RoleClerk), "lease-deed", nil, nil)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func (f *serviceFixture) deniedEntries(t *testing.T, docID id.DocumentID) []audit.Entry {
	t.Helper()
	entries, err := f.service.ListAudit(context.Background(), docID)
	require.NoError(t, err)
	var denied []audit.Entry
	for _, entry := range entries {
		if !entry.Success {
			denied = append(denied, entry)
		}
	}
	return denied
}

func (f *serviceFixture) approveUpstream(t *testing.T, docID id.DocumentID) {
	t.Helper()
	for _, in := range []VerifyInput{
		{Role: id.RoleClerk, Decision: models.DecisionApproved},
		{Role: id.RoleValuer, Decision: models.DecisionApproved},
		{Role: id.RoleSurveyor, Decision: models.DecisionApproved},
	} {
		_, err := f.service.Verify(roleCtx(in.Role), docID, in)
		require.NoError(t, err)
	}
	_, err := f.service.CrossVerify(roleCtx(id.RoleExaminer), docID, CrossVerifyInput{Decision: models.DecisionApproved})
	require.NoError(t, err)
}
