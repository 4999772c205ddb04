// Package audit owns the append-only trail of workflow activity. Every
// gatekeeper denial and every transition outcome produces exactly one entry;
// the trail is ordered per document and sufficient to replay the document
// status as a reconciliation check against the live record.
package audit

import (
	"time"

	"github.com/google/uuid"

	"attesta/internal/document/models"
	id "attesta/pkg/domain"
)

// Action names the audited operation. These strings are part of the stored
// trail; renaming one invalidates history.
type Action string

const (
	ActionVerified      Action = "document_verified"
	ActionCrossVerified Action = "document_cross_verified"
	ActionFinalized     Action = "document_finalized"
	ActionResubmitted   Action = "document_resubmitted"
	ActionViewed        Action = "document_viewed"
)

// EventCategory classifies audit entries by their primary purpose, enabling
// different retention policies and downstream routing.
type EventCategory string

const (
	// CategoryCompliance covers entries with legal significance: decisions,
	// locks, corrections. These require tamper-proof storage and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers denied attempts; they feed monitoring pipelines.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine reads with short retention.
	CategoryOperations EventCategory = "operations"
)

// Entry is one immutable audit record.
type Entry struct {
	ID         uuid.UUID
	Timestamp  time.Time
	DocumentID id.DocumentID
	ActorID    id.ReviewerID
	Role       id.Role
	Action     Action

	BeforeStatus models.Status
	AfterStatus  models.Status
	Decision     models.Decision

	// Success false means the attempt was denied; Reason carries the stable
	// error code so unauthorized attempts stay reconstructible.
	Success bool
	Reason  string

	// Request enrichment for forensics.
	RequestID string
	ClientIP  string
	UserAgent string
}

// Category classifies the entry for retention and routing.
func (e Entry) Category() EventCategory {
	if !e.Success {
		return CategorySecurity
	}
	if e.Action == ActionViewed {
		return CategoryOperations
	}
	return CategoryCompliance
}
