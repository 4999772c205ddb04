package workflow

import (
	"time"

	"attesta/internal/document/models"
	"attesta/internal/policy"
	id "attesta/pkg/domain"
)

// View is the role-scoped projection of a record. Fields carries only what
// the role's allow-list names; stage progress and the lock are workflow
// state, visible to every role.
type View struct {
	ID          id.DocumentID                   `json:"id"`
	ServiceKind models.ServiceKind              `json:"service_kind"`
	Status      models.Status                   `json:"status"`
	Fields      map[string]string               `json:"fields"`
	Extra       map[string]string               `json:"extra,omitempty"`
	Stages      map[id.Role]*models.StageRecord `json:"stages"`
	Locked      bool                            `json:"locked"`
	LockedAt    *time.Time                      `json:"locked_at,omitempty"`
	Revision    int64                           `json:"revision"`
	CreatedAt   time.Time                       `json:"created_at"`
	UpdatedAt   time.Time                       `json:"updated_at"`
}

// buildView projects a record the caller owns; the record must not be
// shared state, since stages are referenced rather than copied.
func buildView(record *models.Record, role id.Role) *View {
	return &View{
		ID:          record.ID,
		ServiceKind: record.ServiceKind,
		Status:      record.Status,
		Fields:      policy.FilterFields(record.Fields, role),
		Extra:       record.Extra,
		Stages:      record.Stages,
		Locked:      record.Locked(),
		LockedAt:    record.LockedAt,
		Revision:    record.Revision,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
}
