package workflow

import (
	"attesta/internal/audit"
	"attesta/internal/document/models"
	id "attesta/pkg/domain"
)

// ReplayStatus reconstructs the document status from its audit trail, oldest
// entry first. It is the reconciliation check behind the status invariant:
// replaying the successful entries must land on the same status the live
// record carries.
//
// Only decisions and the lock need replaying. Field edits ride along with an
// approval, and approvals are never reopened, so an edit can never be the
// sole survivor that distinguishes two statuses.
func ReplayStatus(entries []audit.Entry) models.Status {
	stages := make(map[id.Role]*models.StageRecord, len(id.Roles()))
	for _, role := range id.Roles() {
		stages[role] = &models.StageRecord{Decision: models.DecisionPending}
	}
	locked := false

	for _, entry := range entries {
		if !entry.Success {
			continue
		}
		switch entry.Action {
		case audit.ActionVerified, audit.ActionCrossVerified:
			if stage, ok := stages[entry.Role]; ok {
				stage.Decision = entry.Decision
			}
		case audit.ActionFinalized:
			stages[id.RoleRegistrar].Decision = entry.Decision
			if entry.AfterStatus == models.StatusCompleted {
				locked = true
			}
		case audit.ActionResubmitted:
			// Exactly one stage is rejected while the document is parked in
			// needs-correction; resubmission reopens it.
			for _, role := range id.Roles() {
				if stages[role].Decision == models.DecisionRejected {
					stages[role].Decision = models.DecisionPending
					break
				}
			}
		}
	}

	return DeriveStatus(stages, locked)
}
