//go:build integration

package store_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"attesta/internal/document/models"
	"attesta/internal/document/store"
	id "attesta/pkg/domain"
	"attesta/pkg/platform/sentinel"
	txcontext "attesta/pkg/platform/tx"
	"attesta/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx, "documents")
	s.Require().NoError(err)
}

func newTestRecord(kind models.ServiceKind) *models.Record {
	return models.NewRecord(id.DocumentID(uuid.New()), kind, map[string]string{
		"title":       "Test Deed",
		"buyer_name":  "A Buyer",
		"seller_name": "A Seller",
	}, time.Now().UTC())
}

func (s *PostgresStoreSuite) TestCreateAndFindRoundtrip() {
	ctx := context.Background()

	record := newTestRecord(models.KindSaleDeed)
	record.Extra["attachment_ref"] = "s3://bucket/deed.pdf"
	reviewer := id.ReviewerID(uuid.New())
	now := time.Now().UTC()
	record.Stages[id.RoleClerk].Decision = models.DecisionApproved
	record.Stages[id.RoleClerk].ReviewerID = reviewer
	record.Stages[id.RoleClerk].DecidedAt = &now
	record.Stages[id.RoleClerk].Notes = "documents verified"

	err := s.store.Create(ctx, record)
	s.Require().NoError(err)

	found, err := s.store.FindByID(ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(record.ID, found.ID)
	s.Equal(models.KindSaleDeed, found.ServiceKind)
	s.Equal(models.StatusSubmitted, found.Status)
	s.Equal(record.Fields, found.Fields)
	s.Equal("s3://bucket/deed.pdf", found.Extra["attachment_ref"])
	s.Equal(int64(1), found.Revision)
	s.False(found.Locked())

	clerk := found.Stages[id.RoleClerk]
	s.Require().NotNil(clerk)
	s.Equal(models.DecisionApproved, clerk.Decision)
	s.Equal(reviewer, clerk.ReviewerID)
	s.Equal("documents verified", clerk.Notes)
	s.Require().NotNil(clerk.DecidedAt)
	s.WithinDuration(now, *clerk.DecidedAt, time.Second)

	valuer := found.Stages[id.RoleValuer]
	s.Require().NotNil(valuer)
	s.Equal(models.DecisionPending, valuer.Decision)
}

func (s *PostgresStoreSuite) TestCreateDuplicateID() {
	ctx := context.Background()

	record := newTestRecord(models.KindWillDeed)
	s.Require().NoError(s.store.Create(ctx, record))

	err := s.store.Create(ctx, record)
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestFindByIDNotFound() {
	ctx := context.Background()

	_, err := s.store.FindByID(ctx, id.DocumentID(uuid.New()))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpdateBumpsRevision() {
	ctx := context.Background()

	record := newTestRecord(models.KindTrustDeed)
	s.Require().NoError(s.store.Create(ctx, record))

	record.Status = models.StatusUnderReview
	record.Stages[id.RoleClerk].Decision = models.DecisionApproved
	record.UpdatedAt = time.Now().UTC()
	err := s.store.Update(ctx, record, 1)
	s.Require().NoError(err)
	s.Equal(int64(2), record.Revision)

	found, err := s.store.FindByID(ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusUnderReview, found.Status)
	s.Equal(int64(2), found.Revision)
	s.Equal(models.DecisionApproved, found.Stages[id.RoleClerk].Decision)
}

func (s *PostgresStoreSuite) TestUpdateStaleRevision() {
	ctx := context.Background()

	record := newTestRecord(models.KindSaleDeed)
	s.Require().NoError(s.store.Create(ctx, record))

	record.Status = models.StatusUnderReview
	s.Require().NoError(s.store.Update(ctx, record, 1))

	// A writer still holding revision 1 must be rejected.
	stale := newTestRecord(models.KindSaleDeed)
	stale.ID = record.ID
	stale.Status = models.StatusRejected
	err := s.store.Update(ctx, stale, 1)
	s.ErrorIs(err, sentinel.ErrConflict)

	found, err := s.store.FindByID(ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusUnderReview, found.Status)
}

func (s *PostgresStoreSuite) TestUpdateMissingDocument() {
	ctx := context.Background()

	record := newTestRecord(models.KindAdoptionDeed)
	err := s.store.Update(ctx, record, 1)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestLockRoundtrip() {
	ctx := context.Background()

	record := newTestRecord(models.KindPropertyRegistration)
	s.Require().NoError(s.store.Create(ctx, record))

	registrar := id.ReviewerID(uuid.New())
	lockedAt := time.Now().UTC()
	record.Status = models.StatusCompleted
	record.LockedBy = registrar
	record.LockedAt = &lockedAt
	s.Require().NoError(s.store.Update(ctx, record, 1))

	found, err := s.store.FindByID(ctx, record.ID)
	s.Require().NoError(err)
	s.True(found.Locked())
	s.Equal(registrar, found.LockedBy)
	s.Require().NotNil(found.LockedAt)
	s.WithinDuration(lockedAt, *found.LockedAt, time.Second)
}

// TestConcurrentUpdateSameRevision verifies that racing writers against the
// same revision produce exactly one committed write.
func (s *PostgresStoreSuite) TestConcurrentUpdateSameRevision() {
	ctx := context.Background()

	record := newTestRecord(models.KindSaleDeed)
	s.Require().NoError(s.store.Create(ctx, record))

	const goroutines = 50
	var wg sync.WaitGroup
	var successCount atomic.Int32
	var conflictCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			attempt := newTestRecord(models.KindSaleDeed)
			attempt.ID = record.ID
			attempt.Status = models.StatusUnderReview
			err := s.store.Update(ctx, attempt, 1)
			if err == nil {
				successCount.Add(1)
			} else if errors.Is(err, sentinel.ErrConflict) {
				conflictCount.Add(1)
			}
		}()
	}

	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one update should succeed")
	s.Equal(int32(goroutines-1), conflictCount.Load(), "all others should get conflict error")

	found, err := s.store.FindByID(ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(int64(2), found.Revision)
}

// TestUpdateInRolledBackTransaction verifies that an update joining a
// context-carried transaction is discarded with it.
func (s *PostgresStoreSuite) TestUpdateInRolledBackTransaction() {
	ctx := context.Background()

	record := newTestRecord(models.KindWillDeed)
	s.Require().NoError(s.store.Create(ctx, record))

	tx, err := s.postgres.DB.BeginTx(ctx, &sql.TxOptions{})
	s.Require().NoError(err)
	txCtx := txcontext.WithTx(ctx, tx)

	record.Status = models.StatusUnderReview
	s.Require().NoError(s.store.Update(txCtx, record, 1))
	s.Require().NoError(tx.Rollback())

	found, err := s.store.FindByID(ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusSubmitted, found.Status)
	s.Equal(int64(1), found.Revision)
}
