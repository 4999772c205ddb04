package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attesta/internal/document/models"
	id "attesta/pkg/domain"
	"attesta/pkg/platform/sentinel"
)

func newStoredRecord(t *testing.T, s *InMemoryStore) *models.Record {
	t.Helper()
	record := models.NewRecord(id.NewDocumentID(), models.KindTrustDeed, map[string]string{
		"title": "Trust Deed of the Meridian Family Trust",
	}, time.Now())
	require.NoError(t, s.Create(context.Background(), record))
	return record
}

func TestInMemoryStore_CreateAndFind(t *testing.T) {
	s := NewInMemoryStore()
	record := newStoredRecord(t, s)

	found, err := s.FindByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, found.ID)
	assert.Equal(t, models.StatusSubmitted, found.Status)
	assert.Equal(t, int64(1), found.Revision)

	t.Run("duplicate create conflicts", func(t *testing.T) {
		assert.ErrorIs(t, s.Create(context.Background(), record), sentinel.ErrConflict)
	})

	t.Run("missing record not found", func(t *testing.T) {
		_, err := s.FindByID(context.Background(), id.NewDocumentID())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestInMemoryStore_FindReturnsCopy(t *testing.T) {
	s := NewInMemoryStore()
	record := newStoredRecord(t, s)

	first, err := s.FindByID(context.Background(), record.ID)
	require.NoError(t, err)
	first.Fields["title"] = "tampered"
	first.Stage(id.RoleClerk).Decision = models.DecisionApproved

	second, err := s.FindByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, "Trust Deed of the Meridian Family Trust", second.Fields["title"])
	assert.Equal(t, models.DecisionPending, second.Stage(id.RoleClerk).Decision)
}

func TestInMemoryStore_UpdateRevisionCheck(t *testing.T) {
	s := NewInMemoryStore()
	record := newStoredRecord(t, s)

	loaded, err := s.FindByID(context.Background(), record.ID)
	require.NoError(t, err)

	loaded.Status = models.StatusUnderReview
	require.NoError(t, s.Update(context.Background(), loaded, 1))
	assert.Equal(t, int64(2), loaded.Revision)

	t.Run("stale revision conflicts", func(t *testing.T) {
		stale := loaded.Clone()
		err := s.Update(context.Background(), stale, 1)
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("unknown record not found", func(t *testing.T) {
		ghost := models.NewRecord(id.NewDocumentID(), models.KindWillDeed, nil, time.Now())
		assert.ErrorIs(t, s.Update(context.Background(), ghost, 1), sentinel.ErrNotFound)
	})
}

// TestInMemoryStore_ConcurrentUpdates verifies the lost-update guard: many
// writers racing from the same loaded revision commit exactly once.
func TestInMemoryStore_ConcurrentUpdates(t *testing.T) {
	s := NewInMemoryStore()
	record := newStoredRecord(t, s)

	const writers = 32
	var wg sync.WaitGroup
	var successes atomic.Int32

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			working := record.Clone()
			working.Status = models.StatusUnderReview
			if err := s.Update(context.Background(), working, 1); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())

	final, err := s.FindByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), final.Revision)
}
