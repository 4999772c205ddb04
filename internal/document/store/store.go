// Package store persists document records. Stores are interface-driven so the
// workflow engine stays testable against the in-memory implementation while
// production runs on PostgreSQL.
package store

import (
	"context"

	"attesta/internal/document/models"
	id "attesta/pkg/domain"
)

// Store is the document record persistence contract.
//
// Update implements optimistic concurrency: expectedRevision is the revision
// the caller loaded, and the write commits only if the stored row still
// carries it. On a mismatch the store returns sentinel.ErrConflict and writes
// nothing, which the workflow service surfaces as persistence_conflict. The
// committed record's revision is expectedRevision+1.
type Store interface {
	Create(ctx context.Context, record *models.Record) error
	FindByID(ctx context.Context, docID id.DocumentID) (*models.Record, error)
	Update(ctx context.Context, record *models.Record, expectedRevision int64) error
}
