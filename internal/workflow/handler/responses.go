package handler

import (
	"time"

	"attesta/internal/audit"
	"attesta/internal/document/models"
	"attesta/internal/workflow"
)

// StageResponse is one stage sub-record in a document response.
type StageResponse struct {
	Decision       string                   `json:"decision"`
	ReviewerID     string                   `json:"reviewer_id,omitempty"`
	DecidedAt      *time.Time               `json:"decided_at,omitempty"`
	Notes          string                   `json:"notes,omitempty"`
	CorrectionType string                   `json:"correction_type,omitempty"`
	Corrections    []models.FieldCorrection `json:"corrections,omitempty"`
	LastEditedBy   string                   `json:"last_edited_by,omitempty"`
	LastEditedAt   *time.Time               `json:"last_edited_at,omitempty"`
}

// DocumentResponse is the role-scoped document view returned by every
// document endpoint.
type DocumentResponse struct {
	ID          string                   `json:"id"`
	ServiceKind string                   `json:"service_kind"`
	Status      string                   `json:"status"`
	Fields      map[string]string        `json:"fields"`
	Extra       map[string]string        `json:"extra,omitempty"`
	Stages      map[string]StageResponse `json:"stages"`
	Locked      bool                     `json:"locked"`
	LockedAt    *time.Time               `json:"locked_at,omitempty"`
	Revision    int64                    `json:"revision"`
	CreatedAt   time.Time                `json:"created_at"`
	UpdatedAt   time.Time                `json:"updated_at"`
}

// FromView converts a workflow view to its HTTP response.
func FromView(view *workflow.View) *DocumentResponse {
	stages := make(map[string]StageResponse, len(view.Stages))
	for role, stage := range view.Stages {
		sr := StageResponse{
			Decision:       string(stage.Decision),
			DecidedAt:      stage.DecidedAt,
			Notes:          stage.Notes,
			CorrectionType: string(stage.CorrectionType),
			Corrections:    stage.Corrections,
			LastEditedAt:   stage.LastEditedAt,
		}
		if !stage.ReviewerID.IsNil() {
			sr.ReviewerID = stage.ReviewerID.String()
		}
		if !stage.LastEditedBy.IsNil() {
			sr.LastEditedBy = stage.LastEditedBy.String()
		}
		stages[string(role)] = sr
	}

	return &DocumentResponse{
		ID:          view.ID.String(),
		ServiceKind: string(view.ServiceKind),
		Status:      string(view.Status),
		Fields:      view.Fields,
		Extra:       view.Extra,
		Stages:      stages,
		Locked:      view.Locked,
		LockedAt:    view.LockedAt,
		Revision:    view.Revision,
		CreatedAt:   view.CreatedAt,
		UpdatedAt:   view.UpdatedAt,
	}
}

// AuditEntryResponse is one audit trail entry.
type AuditEntryResponse struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Category     string    `json:"category"`
	ActorID      string    `json:"actor_id,omitempty"`
	Role         string    `json:"role"`
	Action       string    `json:"action"`
	BeforeStatus string    `json:"before_status"`
	AfterStatus  string    `json:"after_status"`
	Decision     string    `json:"decision,omitempty"`
	Success      bool      `json:"success"`
	Reason       string    `json:"reason,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	ClientIP     string    `json:"client_ip,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
}

// AuditTrailResponse is the body for GET /documents/{id}/audit.
type AuditTrailResponse struct {
	DocumentID string               `json:"document_id"`
	Entries    []AuditEntryResponse `json:"entries"`
}

// FromAuditEntries converts audit entries to their HTTP response, oldest
// first.
func FromAuditEntries(docID string, entries []audit.Entry) *AuditTrailResponse {
	out := make([]AuditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		resp := AuditEntryResponse{
			ID:           entry.ID.String(),
			Timestamp:    entry.Timestamp,
			Category:     string(entry.Category()),
			Role:         string(entry.Role),
			Action:       string(entry.Action),
			BeforeStatus: string(entry.BeforeStatus),
			AfterStatus:  string(entry.AfterStatus),
			Decision:     string(entry.Decision),
			Success:      entry.Success,
			Reason:       entry.Reason,
			RequestID:    entry.RequestID,
			ClientIP:     entry.ClientIP,
			UserAgent:    entry.UserAgent,
		}
		if !entry.ActorID.IsNil() {
			resp.ActorID = entry.ActorID.String()
		}
		out = append(out, resp)
	}
	return &AuditTrailResponse{DocumentID: docID, Entries: out}
}
