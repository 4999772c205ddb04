// Package models defines the document record aggregate: the persisted shape
// the workflow engine reads and mutates. The Status field is a pure function
// of the stage sub-records; the workflow package is its only writer.
package models

import (
	"time"

	id "attesta/pkg/domain"
	dErrors "attesta/pkg/domain-errors"
)

// ServiceKind enumerates the supported legal document types.
type ServiceKind string

const (
	KindSaleDeed             ServiceKind = "sale-deed"
	KindWillDeed             ServiceKind = "will-deed"
	KindTrustDeed            ServiceKind = "trust-deed"
	KindPropertyRegistration ServiceKind = "property-registration"
	KindPowerOfAttorney      ServiceKind = "power-of-attorney"
	KindAdoptionDeed         ServiceKind = "adoption-deed"
)

var validServiceKinds = map[ServiceKind]bool{
	KindSaleDeed:             true,
	KindWillDeed:             true,
	KindTrustDeed:            true,
	KindPropertyRegistration: true,
	KindPowerOfAttorney:      true,
	KindAdoptionDeed:         true,
}

// ParseServiceKind constructs a ServiceKind from external input.
func ParseServiceKind(s string) (ServiceKind, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "service kind cannot be empty")
	}
	k := ServiceKind(s)
	if !validServiceKinds[k] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown service kind")
	}
	return k, nil
}

func (k ServiceKind) IsValid() bool { return validServiceKinds[k] }
func (k ServiceKind) String() string { return string(k) }

// Status is the single authoritative document state. It is always derivable
// from the stage sub-records plus the lock flag and must never diverge from
// them; workflow.DeriveStatus is the only code that computes it.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusSubmitted       Status = "submitted"
	StatusInProgress      Status = "in-progress"
	StatusUnderReview     Status = "under-review"
	StatusNeedsCorrection Status = "needs-correction"
	StatusCrossVerified   Status = "cross-verified"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
	StatusCompleted       Status = "completed"
)

func (s Status) String() string { return string(s) }

// Terminal reports whether no further review transition can change the status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// Decision is the tri-state outcome of one stage.
type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// ParseDecision accepts only the two caller-settable outcomes; pending is the
// initial state, never a request value.
func ParseDecision(s string) (Decision, error) {
	switch Decision(s) {
	case DecisionApproved:
		return DecisionApproved, nil
	case DecisionRejected:
		return DecisionRejected, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "decision must be approved or rejected")
	}
}

// Decided reports whether the decision is terminal for its stage.
func (d Decision) Decided() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// CorrectionType tags the category of a stage correction. Which values a
// stage may use is policy data (valuer: trustee, amount; surveyor: land, plot).
type CorrectionType string

const (
	CorrectionTrustee CorrectionType = "trustee"
	CorrectionAmount  CorrectionType = "amount"
	CorrectionLand    CorrectionType = "land"
	CorrectionPlot    CorrectionType = "plot"
)

// FieldCorrection is one itemized field edit recorded by the examiner during
// cross-verification.
type FieldCorrection struct {
	Field string `json:"field"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// StageRecord is the portion of a document owned and mutated exclusively by
// one role. Once Decision leaves pending it is immutable.
type StageRecord struct {
	Decision       Decision          `json:"decision"`
	ReviewerID     id.ReviewerID     `json:"reviewer_id,omitzero"`
	DecidedAt      *time.Time        `json:"decided_at,omitempty"`
	Notes          string            `json:"notes,omitempty"`
	CorrectionType CorrectionType    `json:"correction_type,omitempty"`
	Corrections    []FieldCorrection `json:"corrections,omitempty"`
	LastEditedBy   id.ReviewerID     `json:"last_edited_by,omitzero"`
	LastEditedAt   *time.Time        `json:"last_edited_at,omitempty"`
}

// Record is one submitted document under review.
type Record struct {
	ID          id.DocumentID
	ServiceKind ServiceKind
	Status      Status
	// Fields holds the document content the stages may read and correct.
	Fields map[string]string
	// Extra holds top-level data owned by other collaborators (attachments,
	// payment info). The core round-trips it untouched.
	Extra  map[string]string
	Stages map[id.Role]*StageRecord

	LockedBy id.ReviewerID
	LockedAt *time.Time

	// Revision is the optimistic concurrency counter; every committed write
	// increments it, and writes against a stale revision are rejected.
	Revision  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRecord builds a freshly submitted record with pending stage sub-records
// for every role.
func NewRecord(docID id.DocumentID, kind ServiceKind, fields map[string]string, now time.Time) *Record {
	stages := make(map[id.Role]*StageRecord, len(id.Roles()))
	for _, role := range id.Roles() {
		stages[role] = &StageRecord{Decision: DecisionPending}
	}
	if fields == nil {
		fields = make(map[string]string)
	}
	return &Record{
		ID:          docID,
		ServiceKind: kind,
		Status:      StatusSubmitted,
		Fields:      fields,
		Extra:       make(map[string]string),
		Stages:      stages,
		Revision:    1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Locked reports whether the terminal stage froze the record.
func (r *Record) Locked() bool {
	return r.LockedAt != nil
}

// Stage returns the sub-record for a role, creating a pending one if a stored
// record predates the role (schema growth tolerance).
func (r *Record) Stage(role id.Role) *StageRecord {
	if r.Stages == nil {
		r.Stages = make(map[id.Role]*StageRecord)
	}
	if st, ok := r.Stages[role]; ok {
		return st
	}
	st := &StageRecord{Decision: DecisionPending}
	r.Stages[role] = st
	return st
}

// Clone returns a deep copy so callers can mutate a working copy and persist
// it with a compare-and-swap, leaving the original untouched on failure.
func (r *Record) Clone() *Record {
	cp := *r
	cp.Fields = cloneStringMap(r.Fields)
	cp.Extra = cloneStringMap(r.Extra)
	cp.Stages = make(map[id.Role]*StageRecord, len(r.Stages))
	for role, st := range r.Stages {
		stCopy := *st
		if st.DecidedAt != nil {
			t := *st.DecidedAt
			stCopy.DecidedAt = &t
		}
		if st.LastEditedAt != nil {
			t := *st.LastEditedAt
			stCopy.LastEditedAt = &t
		}
		if st.Corrections != nil {
			stCopy.Corrections = append([]FieldCorrection(nil), st.Corrections...)
		}
		cp.Stages[role] = &stCopy
	}
	if r.LockedAt != nil {
		t := *r.LockedAt
		cp.LockedAt = &t
	}
	return &cp
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
