package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	id "attesta/pkg/domain"
)

// Store persists audit entries. Swap implementations without touching the
// emitter: memory for tests, PostgreSQL (with Kafka outbox) in production.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByDocument(ctx context.Context, docID id.DocumentID) ([]Entry, error)
}

// Emitter appends entries to the trail. Emission is best-effort by contract:
// a failing audit write is logged and never propagated, so it cannot fail the
// transition it describes.
type Emitter struct {
	store  Store
	logger *slog.Logger
}

func NewEmitter(store Store, logger *slog.Logger) *Emitter {
	return &Emitter{store: store, logger: logger}
}

// Record stamps and appends one entry.
func (e *Emitter) Record(ctx context.Context, entry Entry) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	if err := e.store.Append(ctx, entry); err != nil {
		e.logger.ErrorContext(ctx, "audit append failed",
			"error", err,
			"document_id", entry.DocumentID,
			"action", entry.Action,
			"request_id", entry.RequestID,
		)
	}
}

// List returns the trail for one document, oldest first.
func (e *Emitter) List(ctx context.Context, docID id.DocumentID) ([]Entry, error) {
	return e.store.ListByDocument(ctx, docID)
}
