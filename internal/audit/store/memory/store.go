// Package memory keeps audit entries in process memory for tests and the
// zero-dependency development setup.
package memory

import (
	"context"
	"sync"

	"attesta/internal/audit"
	id "attesta/pkg/domain"
)

type Store struct {
	mu      sync.RWMutex
	entries map[id.DocumentID][]audit.Entry
}

func New() *Store {
	return &Store{entries: make(map[id.DocumentID][]audit.Entry)}
}

func (s *Store) Append(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.DocumentID] = append(s.entries[entry.DocumentID], entry)
	return nil
}

func (s *Store) ListByDocument(_ context.Context, docID id.DocumentID) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Entry{}, s.entries[docID]...), nil
}
