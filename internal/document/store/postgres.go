package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"attesta/internal/document/models"
	id "attesta/pkg/domain"
	"attesta/pkg/platform/sentinel"
	txcontext "attesta/pkg/platform/tx"
)

// PostgresStore persists document records in a single row per document.
// Stage sub-records, fields, and pass-through extras live in jsonb columns so
// one UPDATE commits the whole transition atomically: a failure mid-request
// can never leave status diverged from the stages that imply it.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema for reference (managed by the deployment's migration tooling):
//
//	CREATE TABLE documents (
//	    id           UUID PRIMARY KEY,
//	    service_kind TEXT NOT NULL,
//	    status       TEXT NOT NULL,
//	    fields       JSONB NOT NULL DEFAULT '{}',
//	    extra        JSONB NOT NULL DEFAULT '{}',
//	    stages       JSONB NOT NULL DEFAULT '{}',
//	    locked_by    UUID,
//	    locked_at    TIMESTAMPTZ,
//	    revision     BIGINT NOT NULL,
//	    created_at   TIMESTAMPTZ NOT NULL,
//	    updated_at   TIMESTAMPTZ NOT NULL
//	);

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, record *models.Record) error {
	fields, extra, stages, err := marshalRecord(record)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO documents (
			id, service_kind, status, fields, extra, stages,
			locked_by, locked_at, revision, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(record.ID),
		record.ServiceKind.String(),
		record.Status.String(),
		fields,
		extra,
		stages,
		nullableReviewer(record.LockedBy),
		record.LockedAt,
		record.Revision,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, docID id.DocumentID) (*models.Record, error) {
	query := `
		SELECT id, service_kind, status, fields, extra, stages,
			   locked_by, locked_at, revision, created_at, updated_at
		FROM documents
		WHERE id = $1
	`
	row := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(docID))
	return scanRecord(row)
}

// Update commits the whole mutated record in one statement guarded by the
// revision check. RowsAffected == 0 means either a stale revision or a
// missing row; a follow-up existence check disambiguates.
func (s *PostgresStore) Update(ctx context.Context, record *models.Record, expectedRevision int64) error {
	fields, extra, stages, err := marshalRecord(record)
	if err != nil {
		return err
	}

	query := `
		UPDATE documents
		SET status = $3, fields = $4, extra = $5, stages = $6,
			locked_by = $7, locked_at = $8,
			revision = revision + 1, updated_at = $9
		WHERE id = $1 AND revision = $2
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(record.ID),
		expectedRevision,
		record.Status.String(),
		fields,
		extra,
		stages,
		nullableReviewer(record.LockedBy),
		record.LockedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		checkErr := s.execer(ctx).QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1)`, uuid.UUID(record.ID),
		).Scan(&exists)
		if checkErr != nil {
			return fmt.Errorf("check document existence: %w", checkErr)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}
	record.Revision = expectedRevision + 1
	return nil
}

func marshalRecord(record *models.Record) (fields, extra, stages []byte, err error) {
	if fields, err = json.Marshal(record.Fields); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal fields: %w", err)
	}
	if extra, err = json.Marshal(record.Extra); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal extra: %w", err)
	}
	if stages, err = json.Marshal(record.Stages); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal stages: %w", err)
	}
	return fields, extra, stages, nil
}

func nullableReviewer(reviewerID id.ReviewerID) *uuid.UUID {
	if reviewerID.IsNil() {
		return nil
	}
	u := uuid.UUID(reviewerID)
	return &u
}

func scanRecord(row *sql.Row) (*models.Record, error) {
	var (
		docID      uuid.UUID
		kind       string
		status     string
		fieldsRaw  []byte
		extraRaw   []byte
		stagesRaw  []byte
		lockedBy   *uuid.UUID
		lockedAt   *time.Time
		revision   int64
		createdAt  time.Time
		updatedAt  time.Time
	)
	err := row.Scan(&docID, &kind, &status, &fieldsRaw, &extraRaw, &stagesRaw,
		&lockedBy, &lockedAt, &revision, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}

	record := &models.Record{
		ID:          id.DocumentID(docID),
		ServiceKind: models.ServiceKind(kind),
		Status:      models.Status(status),
		LockedAt:    lockedAt,
		Revision:    revision,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}
	if lockedBy != nil {
		record.LockedBy = id.ReviewerID(*lockedBy)
	}
	if err := json.Unmarshal(fieldsRaw, &record.Fields); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	if err := json.Unmarshal(extraRaw, &record.Extra); err != nil {
		return nil, fmt.Errorf("unmarshal extra: %w", err)
	}
	if err := json.Unmarshal(stagesRaw, &record.Stages); err != nil {
		return nil, fmt.Errorf("unmarshal stages: %w", err)
	}
	return record, nil
}
