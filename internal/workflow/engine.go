package workflow

import (
	"sort"
	"time"

	"attesta/internal/document/models"
	"attesta/internal/policy"
	id "attesta/pkg/domain"
	dErrors "attesta/pkg/domain-errors"
)

// The engine functions below are the only code that mutates stage sub-records,
// document fields, the lock, and (via DeriveStatus) the status. They operate
// on a working copy of the record; the service persists the copy with a
// compare-and-swap, so a failed write leaves no partial state behind.

// applyVerify records a stage decision and, on approval, merges any field
// corrections permitted by the role's edit list.
//
// All policy checks run before the first mutation: an unauthorized field in
// the payload rejects the whole write (fail-closed), leaving the record
// untouched.
func applyVerify(
	record *models.Record,
	rp *policy.RolePolicy,
	reviewerID id.ReviewerID,
	decision models.Decision,
	notes string,
	correctionType models.CorrectionType,
	corrections map[string]string,
	now time.Time,
) error {
	if decision == models.DecisionRejected && len(corrections) > 0 {
		return dErrors.New(dErrors.CodeValidation, "corrections cannot accompany a rejection")
	}
	if correctionType != "" && !rp.AllowsCorrectionType(correctionType) {
		return dErrors.Newf(dErrors.CodeValidation, "correction type %s not available to %s", correctionType, rp.Role)
	}
	if err := checkEditable(corrections, rp.Role); err != nil {
		return err
	}

	stage := record.Stage(rp.Role)
	if len(corrections) > 0 {
		mergeCorrections(record, stage, reviewerID, corrections, now)
		stage.CorrectionType = correctionType
	}

	stage.Decision = decision
	stage.ReviewerID = reviewerID
	stage.DecidedAt = &now
	stage.Notes = notes

	record.Status = DeriveStatus(record.Stages, record.Locked())
	record.UpdatedAt = now
	return nil
}

// applyCrossVerify is the examiner's variant of applyVerify: instead of a
// single tagged edit it records an itemized correction list capturing the
// prior value of every field it fixed.
func applyCrossVerify(
	record *models.Record,
	rp *policy.RolePolicy,
	reviewerID id.ReviewerID,
	decision models.Decision,
	notes string,
	corrections map[string]string,
	now time.Time,
) error {
	if decision == models.DecisionRejected && len(corrections) > 0 {
		return dErrors.New(dErrors.CodeValidation, "corrections cannot accompany a rejection")
	}
	if err := checkEditable(corrections, rp.Role); err != nil {
		return err
	}

	stage := record.Stage(rp.Role)
	if len(corrections) > 0 {
		itemized := make([]models.FieldCorrection, 0, len(corrections))
		for _, field := range sortedKeys(corrections) {
			itemized = append(itemized, models.FieldCorrection{
				Field: field,
				From:  record.Fields[field],
				To:    corrections[field],
			})
		}
		mergeCorrections(record, stage, reviewerID, corrections, now)
		stage.Corrections = append(stage.Corrections, itemized...)
	}

	stage.Decision = decision
	stage.ReviewerID = reviewerID
	stage.DecidedAt = &now
	stage.Notes = notes

	record.Status = DeriveStatus(record.Stages, record.Locked())
	record.UpdatedAt = now
	return nil
}

// applyFinalize records the registrar's terminal decision and, when asked,
// locks the record. The gatekeeper has already established that all four
// upstream stages approved and that the record is not locked.
func applyFinalize(
	record *models.Record,
	reviewerID id.ReviewerID,
	decision models.Decision,
	remarks string,
	lock bool,
	now time.Time,
) error {
	if lock && decision != models.DecisionApproved {
		return dErrors.New(dErrors.CodeValidation, "only an approved document can be locked")
	}

	stage := record.Stage(id.RoleRegistrar)
	stage.Decision = decision
	stage.ReviewerID = reviewerID
	stage.DecidedAt = &now
	stage.Notes = remarks

	if lock {
		record.LockedBy = reviewerID
		record.LockedAt = &now
	}

	record.Status = DeriveStatus(record.Stages, record.Locked())
	record.UpdatedAt = now
	return nil
}

// applyResubmit reopens the single rejected stage after the submitter reworks
// the document. It is the only reset path in the machine and applies solely
// to records parked in needs-correction.
func applyResubmit(record *models.Record, now time.Time) error {
	if record.Locked() {
		return dErrors.New(dErrors.CodeRecordLocked, "record is locked")
	}
	if DeriveStatus(record.Stages, record.Locked()) != models.StatusNeedsCorrection {
		return dErrors.New(dErrors.CodeConflict, "document is not awaiting correction")
	}

	for _, role := range id.Roles() {
		stage := record.Stage(role)
		if stage.Decision == models.DecisionRejected {
			// Keep the edit trail; only the decision reopens.
			stage.Decision = models.DecisionPending
			stage.ReviewerID = id.ReviewerID{}
			stage.DecidedAt = nil
			break
		}
	}

	record.Status = DeriveStatus(record.Stages, record.Locked())
	record.UpdatedAt = now
	return nil
}

// checkEditable verifies every payload field against the role's edit list
// before anything is written.
func checkEditable(corrections map[string]string, role id.Role) error {
	for _, field := range sortedKeys(corrections) {
		if !policy.CanEditField(field, role) {
			return dErrors.Newf(dErrors.CodeUnauthorizedField, "field %s is outside the %s edit list", field, role)
		}
	}
	return nil
}

func mergeCorrections(record *models.Record, stage *models.StageRecord, reviewerID id.ReviewerID, corrections map[string]string, now time.Time) {
	if record.Fields == nil {
		record.Fields = make(map[string]string, len(corrections))
	}
	for field, value := range corrections {
		record.Fields[field] = value
	}
	stage.LastEditedBy = reviewerID
	stage.LastEditedAt = &now
}

// sortedKeys gives deterministic policy errors and correction ordering.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
