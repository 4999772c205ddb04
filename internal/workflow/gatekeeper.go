package workflow

import (
	"attesta/internal/document/models"
	"attesta/internal/policy"
	id "attesta/pkg/domain"
	dErrors "attesta/pkg/domain-errors"
)

// CanReach decides whether the role's stage is currently reachable on the
// record. It is the sole enforcement point: every transition, whatever the
// caller's privileges, passes through here before any mutation.
//
// Denials are typed, never generic - callers and audit entries depend on the
// distinction:
//   - CodeRecordLocked: the registrar froze the record
//   - CodeAlreadyDecided: this stage is terminal and immutable
//   - CodePrerequisiteNotMet: an upstream stage has not approved, or the
//     document is parked in needs-correction awaiting resubmission
func CanReach(record *models.Record, role id.Role) error {
	if record.Locked() {
		return dErrors.New(dErrors.CodeRecordLocked, "record is locked")
	}

	stage := stageOf(record.Stages, role)
	if stage.Decision.Decided() {
		return dErrors.New(dErrors.CodeAlreadyDecided, "stage already decided")
	}

	// A rejected stage parks the document until the submitter resubmits; no
	// remaining stage may act on content that is about to be reworked.
	if DeriveStatus(record.Stages, record.Locked()) == models.StatusNeedsCorrection {
		return dErrors.New(dErrors.CodePrerequisiteNotMet, "document awaiting correction")
	}

	precedence := policy.PrecedenceFor(record.ServiceKind)
	for _, prereq := range precedence.Prerequisites(role) {
		if stageOf(record.Stages, prereq).Decision != models.DecisionApproved {
			return dErrors.Newf(dErrors.CodePrerequisiteNotMet, "stage %s has not approved", prereq)
		}
	}
	return nil
}
