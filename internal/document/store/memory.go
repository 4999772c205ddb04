package store

import (
	"context"
	"sync"

	"attesta/internal/document/models"
	id "attesta/pkg/domain"
	"attesta/pkg/platform/sentinel"
)

// InMemoryStore keeps records in a map guarded by a RWMutex. It enforces the
// same revision contract as the PostgreSQL store so concurrency tests run
// without containers.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.DocumentID]*models.Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.DocumentID]*models.Record)}
}

func (s *InMemoryStore) Create(_ context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.ID]; exists {
		return sentinel.ErrConflict
	}
	s.records[record.ID] = record.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, docID id.DocumentID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if record, ok := s.records[docID]; ok {
		return record.Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) Update(_ context.Context, record *models.Record, expectedRevision int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.records[record.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Revision != expectedRevision {
		return sentinel.ErrConflict
	}
	committed := record.Clone()
	committed.Revision = expectedRevision + 1
	s.records[record.ID] = committed
	record.Revision = committed.Revision
	return nil
}
