// Package workflow is the approval state machine: the gatekeeper that decides
// whether a stage may act, the transition engine that is the only writer of
// stage sub-records and document status, and the service that binds them to
// persistence and the audit trail.
package workflow

import (
	"attesta/internal/document/models"
	id "attesta/pkg/domain"
)

// DeriveStatus computes the document status from the stage sub-records and
// the lock flag. It is the single place allowed to produce a Status value for
// persistence; every engine mutation ends by calling it, so status can never
// drift from the stages that imply it.
func DeriveStatus(stages map[id.Role]*models.StageRecord, locked bool) models.Status {
	final := stageOf(stages, id.RoleRegistrar)
	switch final.Decision {
	case models.DecisionApproved:
		if locked {
			return models.StatusCompleted
		}
		return models.StatusApproved
	case models.DecisionRejected:
		return models.StatusRejected
	}

	upstream := []id.Role{id.RoleClerk, id.RoleValuer, id.RoleSurveyor, id.RoleExaminer}

	approved := 0
	edited := false
	for _, role := range upstream {
		st := stageOf(stages, role)
		switch st.Decision {
		case models.DecisionRejected:
			return models.StatusNeedsCorrection
		case models.DecisionApproved:
			approved++
		}
		if st.LastEditedAt != nil {
			edited = true
		}
	}

	switch {
	case approved == len(upstream):
		return models.StatusCrossVerified
	case approved > 0:
		return models.StatusUnderReview
	case edited:
		return models.StatusInProgress
	default:
		return models.StatusSubmitted
	}
}

func stageOf(stages map[id.Role]*models.StageRecord, role id.Role) *models.StageRecord {
	if st, ok := stages[role]; ok && st != nil {
		return st
	}
	return &models.StageRecord{Decision: models.DecisionPending}
}
