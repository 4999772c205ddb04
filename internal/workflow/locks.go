package workflow

import (
	"sync"

	id "attesta/pkg/domain"
)

// lockTable serializes transitions per document within one process. Entries
// are reference-counted and removed when the last holder releases, so the
// table stays bounded by in-flight transitions rather than total documents.
//
// It complements, not replaces, the store's revision check: the mutex avoids
// burning revision conflicts between goroutines of one instance, while the
// revision closes the lost-update window across instances.
type lockTable struct {
	mu    sync.Mutex
	locks map[id.DocumentID]*docLock
}

type docLock struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[id.DocumentID]*docLock)}
}

// acquire blocks until the document lock is held and returns the release func.
func (t *lockTable) acquire(docID id.DocumentID) func() {
	t.mu.Lock()
	l, ok := t.locks[docID]
	if !ok {
		l = &docLock{}
		t.locks[docID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, docID)
		}
		t.mu.Unlock()
	}
}
