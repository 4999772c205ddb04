// Package postgres persists audit entries using the transactional outbox
// pattern. Entries land in audit_events for querying and in the outbox table
// for Kafka publishing; both writes join the caller's transaction when one is
// carried in the context, so a document update and its audit trail commit or
// roll back together.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"attesta/internal/audit"
	id "attesta/pkg/domain"
	txcontext "attesta/pkg/platform/tx"

	"github.com/google/uuid"
)

// Schema:
//
//	CREATE TABLE audit_events (
//	    id            UUID PRIMARY KEY,
//	    category      TEXT NOT NULL,
//	    timestamp     TIMESTAMPTZ NOT NULL,
//	    document_id   UUID NOT NULL,
//	    actor_id      UUID,
//	    role          TEXT NOT NULL,
//	    action        TEXT NOT NULL,
//	    before_status TEXT NOT NULL,
//	    after_status  TEXT NOT NULL,
//	    decision      TEXT NOT NULL DEFAULT '',
//	    success       BOOLEAN NOT NULL,
//	    reason        TEXT NOT NULL DEFAULT '',
//	    request_id    TEXT NOT NULL DEFAULT '',
//	    client_ip     TEXT NOT NULL DEFAULT '',
//	    user_agent    TEXT NOT NULL DEFAULT ''
//	);
//	CREATE INDEX audit_events_document_idx ON audit_events (document_id, timestamp);
//
//	CREATE TABLE outbox (
//	    id             UUID PRIMARY KEY,
//	    aggregate_type TEXT NOT NULL,
//	    aggregate_id   TEXT NOT NULL,
//	    event_type     TEXT NOT NULL,
//	    payload        JSONB NOT NULL,
//	    created_at     TIMESTAMPTZ NOT NULL
//	);
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append writes the entry to audit_events and enqueues it on the outbox in
// the same transaction when the context carries one.
func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	ex := s.execer(ctx)

	var actorID *uuid.UUID
	if !entry.ActorID.IsNil() {
		aid := uuid.UUID(entry.ActorID)
		actorID = &aid
	}

	insertEvent := `
		INSERT INTO audit_events (
			id, category, timestamp, document_id, actor_id, role, action,
			before_status, after_status, decision, success, reason,
			request_id, client_ip, user_agent
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = ex.ExecContext(ctx, insertEvent,
		entry.ID,
		string(entry.Category()),
		entry.Timestamp,
		uuid.UUID(entry.DocumentID),
		actorID,
		string(entry.Role),
		string(entry.Action),
		string(entry.BeforeStatus),
		string(entry.AfterStatus),
		string(entry.Decision),
		entry.Success,
		entry.Reason,
		entry.RequestID,
		entry.ClientIP,
		entry.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	insertOutbox := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = ex.ExecContext(ctx, insertOutbox,
		uuid.New(),
		"document",
		entry.DocumentID.String(),
		string(entry.Action),
		payload,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// ListByDocument returns the audit trail for a document oldest first, which
// is the order replay consumes it in.
func (s *Store) ListByDocument(ctx context.Context, docID id.DocumentID) ([]audit.Entry, error) {
	query := `
		SELECT id, timestamp, document_id, actor_id, role, action,
		       before_status, after_status, decision, success, reason,
		       request_id, client_ip, user_agent
		FROM audit_events
		WHERE document_id = $1
		ORDER BY timestamp ASC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(docID))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			entry   audit.Entry
			docUUID uuid.UUID
			actorID *uuid.UUID
			role    string
			action  string
		)
		err := rows.Scan(
			&entry.ID,
			&entry.Timestamp,
			&docUUID,
			&actorID,
			&role,
			&action,
			&entry.BeforeStatus,
			&entry.AfterStatus,
			&entry.Decision,
			&entry.Success,
			&entry.Reason,
			&entry.RequestID,
			&entry.ClientIP,
			&entry.UserAgent,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		entry.DocumentID = id.DocumentID(docUUID)
		if actorID != nil {
			entry.ActorID = id.ReviewerID(*actorID)
		}
		entry.Role = id.Role(role)
		entry.Action = audit.Action(action)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return entries, nil
}
