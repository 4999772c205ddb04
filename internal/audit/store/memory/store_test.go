package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attesta/internal/audit"
	"attesta/internal/document/models"
	id "attesta/pkg/domain"
)

func TestStore_AppendAndList(t *testing.T) {
	store := New()
	ctx := context.Background()
	docID := id.NewDocumentID()

	first := audit.Entry{
		ID:         uuid.New(),
		Timestamp:  time.Now(),
		DocumentID: docID,
		Role:       id.RoleClerk,
		Action:     audit.ActionVerified,
		Decision:   models.DecisionApproved,
		Success:    true,
	}
	second := audit.Entry{
		ID:         uuid.New(),
		Timestamp:  time.Now(),
		DocumentID: docID,
		Role:       id.RoleValuer,
		Action:     audit.ActionVerified,
		Success:    false,
		Reason:     "prerequisite_not_met",
	}
	require.NoError(t, store.Append(ctx, first))
	require.NoError(t, store.Append(ctx, second))

	entries, err := store.ListByDocument(ctx, docID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, first.ID, entries[0].ID)
	assert.Equal(t, second.ID, entries[1].ID)
}

func TestStore_ListUnknownDocument(t *testing.T) {
	store := New()

	entries, err := store.ListByDocument(context.Background(), id.NewDocumentID())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_ListReturnsCopy(t *testing.T) {
	store := New()
	ctx := context.Background()
	docID := id.NewDocumentID()
	require.NoError(t, store.Append(ctx, audit.Entry{ID: uuid.New(), DocumentID: docID, Success: true}))

	entries, err := store.ListByDocument(ctx, docID)
	require.NoError(t, err)
	entries[0].Reason = "tampered"

	again, err := store.ListByDocument(ctx, docID)
	require.NoError(t, err)
	assert.Empty(t, again[0].Reason)
}
