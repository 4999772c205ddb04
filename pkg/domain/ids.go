// Package domain holds the primitive value types shared across modules:
// typed UUIDs and the reviewer role enum. Construct values via the Parse
// functions at trust boundaries; direct casting bypasses validation.
package domain

import (
	"github.com/google/uuid"

	dErrors "attesta/pkg/domain-errors"
)

// DocumentID identifies one submitted document record.
type DocumentID uuid.UUID

// ReviewerID identifies the human reviewer acting on a stage.
type ReviewerID uuid.UUID

// ParseDocumentID validates external input as a document ID.
//
// Errors: CodeInvalidInput when the value is empty, malformed, or the nil UUID.
func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return DocumentID{}, err
	}
	return DocumentID(u), nil
}

// ParseReviewerID validates external input as a reviewer ID.
func ParseReviewerID(s string) (ReviewerID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return ReviewerID{}, err
	}
	return ReviewerID(u), nil
}

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be the nil UUID")
	}
	return u, nil
}

// NewDocumentID mints a fresh document ID.
func NewDocumentID() DocumentID { return DocumentID(uuid.New()) }

// NewReviewerID mints a fresh reviewer ID.
func NewReviewerID() ReviewerID { return ReviewerID(uuid.New()) }

func (id DocumentID) String() string { return uuid.UUID(id).String() }
func (id DocumentID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id ReviewerID) String() string { return uuid.UUID(id).String() }
func (id ReviewerID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// Text marshaling keeps typed IDs as canonical UUID strings in JSON and jsonb
// columns. Distinct types do not inherit uuid.UUID's methods, so these are
// spelled out.

func (id DocumentID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *DocumentID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id ReviewerID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *ReviewerID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}
