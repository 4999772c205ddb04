package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"attesta/internal/document/models"
	id "attesta/pkg/domain"
)

func stagesWith(decisions map[id.Role]models.Decision) map[id.Role]*models.StageRecord {
	stages := make(map[id.Role]*models.StageRecord, len(id.Roles()))
	for _, role := range id.Roles() {
		stages[role] = &models.StageRecord{Decision: models.DecisionPending}
	}
	for role, decision := range decisions {
		stages[role].Decision = decision
	}
	return stages
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name      string
		decisions map[id.Role]models.Decision
		locked    bool
		want      models.Status
	}{
		{
			name:      "all pending",
			decisions: nil,
			want:      models.StatusSubmitted,
		},
		{
			name:      "one upstream approval",
			decisions: map[id.Role]models.Decision{id.RoleClerk: models.DecisionApproved},
			want:      models.StatusUnderReview,
		},
		{
			name: "three upstream approvals",
			decisions: map[id.Role]models.Decision{
				id.RoleClerk:    models.DecisionApproved,
				id.RoleValuer:   models.DecisionApproved,
				id.RoleSurveyor: models.DecisionApproved,
			},
			want: models.StatusUnderReview,
		},
		{
			name: "all four upstream approved",
			decisions: map[id.Role]models.Decision{
				id.RoleClerk:    models.DecisionApproved,
				id.RoleValuer:   models.DecisionApproved,
				id.RoleSurveyor: models.DecisionApproved,
				id.RoleExaminer: models.DecisionApproved,
			},
			want: models.StatusCrossVerified,
		},
		{
			name:      "upstream rejection parks the document",
			decisions: map[id.Role]models.Decision{id.RoleValuer: models.DecisionRejected},
			want:      models.StatusNeedsCorrection,
		},
		{
			name: "rejection wins over sibling approvals",
			decisions: map[id.Role]models.Decision{
				id.RoleClerk:    models.DecisionApproved,
				id.RoleValuer:   models.DecisionApproved,
				id.RoleSurveyor: models.DecisionRejected,
			},
			want: models.StatusNeedsCorrection,
		},
		{
			name: "registrar approval",
			decisions: map[id.Role]models.Decision{
				id.RoleClerk:     models.DecisionApproved,
				id.RoleValuer:    models.DecisionApproved,
				id.RoleSurveyor:  models.DecisionApproved,
				id.RoleExaminer:  models.DecisionApproved,
				id.RoleRegistrar: models.DecisionApproved,
			},
			want: models.StatusApproved,
		},
		{
			name: "registrar approval plus lock",
			decisions: map[id.Role]models.Decision{
				id.RoleClerk:     models.DecisionApproved,
				id.RoleValuer:    models.DecisionApproved,
				id.RoleSurveyor:  models.DecisionApproved,
				id.RoleExaminer:  models.DecisionApproved,
				id.RoleRegistrar: models.DecisionApproved,
			},
			locked: true,
			want:   models.StatusCompleted,
		},
		{
			name: "registrar rejection",
			decisions: map[id.Role]models.Decision{
				id.RoleClerk:     models.DecisionApproved,
				id.RoleValuer:    models.DecisionApproved,
				id.RoleSurveyor:  models.DecisionApproved,
				id.RoleExaminer:  models.DecisionApproved,
				id.RoleRegistrar: models.DecisionRejected,
			},
			want: models.StatusRejected,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveStatus(stagesWith(tt.decisions), tt.locked)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeriveStatus_EditsWithoutApprovals(t *testing.T) {
	stages := stagesWith(nil)
	now := time.Now()
	stages[id.RoleClerk].LastEditedAt = &now

	assert.Equal(t, models.StatusInProgress, DeriveStatus(stages, false))
}

func TestDeriveStatus_MissingStageRecords(t *testing.T) {
	// A sparse stage map behaves as all-pending rather than panicking.
	assert.Equal(t, models.StatusSubmitted, DeriveStatus(map[id.Role]*models.StageRecord{}, false))
}
