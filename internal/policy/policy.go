// Package policy is the role access policy: pure data and lookups mapping a
// reviewer role to what it may see, what it may edit, which action it may
// take, and where its stage sits in the pipeline. Role behavior lives here as
// configuration so the transition engine stays one generic code path instead
// of five near-identical controllers.
package policy

import (
	"attesta/internal/document/models"
	id "attesta/pkg/domain"
	dErrors "attesta/pkg/domain-errors"
)

// Action is the single transition operation a role is allowed to invoke.
type Action string

const (
	ActionVerify      Action = "verify"
	ActionCrossVerify Action = "cross-verify"
	ActionFinalize    Action = "finalize"
)

// RolePolicy is the per-role configuration record looked up once per request.
type RolePolicy struct {
	Role       id.Role
	StageIndex int // 1-based pipeline position
	Action     Action

	// AllowAllFields grants unrestricted read; only the registrar and the
	// examiner carry it. Write access is never unrestricted: edits go through
	// EditList regardless.
	AllowAllFields bool
	AllowList      []string
	EditList       []string

	// CorrectionTypes enumerates the tags this stage may attach to a
	// correction; empty means the stage records none.
	CorrectionTypes []models.CorrectionType
}

// Canonical field names of the document content. The record store may carry
// more; FilterFields drops anything a role's allow-list does not name, and
// unknown payload fields are rejected rather than silently written.
const (
	FieldTitle            = "title"
	FieldSummary          = "summary"
	FieldApplicantName    = "applicant_name"
	FieldApplicantContact = "applicant_contact"
	FieldExecutantName    = "executant_name"
	FieldWitnessNames     = "witness_names"
	FieldTrusteeName      = "trustee_name"
	FieldAmount           = "amount"
	FieldConsideration    = "consideration_amount"
	FieldStampDuty        = "stamp_duty"
	FieldLandExtent       = "land_extent"
	FieldPlotNumber       = "plot_number"
	FieldSurveyNumber     = "survey_number"
)

// rolePolicies is the single source of truth for role capabilities.
var rolePolicies = map[id.Role]*RolePolicy{
	id.RoleClerk: {
		Role:       id.RoleClerk,
		StageIndex: 1,
		Action:     ActionVerify,
		AllowList: []string{
			FieldTitle, FieldSummary, FieldApplicantName, FieldApplicantContact,
			FieldExecutantName, FieldWitnessNames,
		},
		EditList: []string{FieldApplicantName, FieldApplicantContact, FieldWitnessNames},
	},
	id.RoleValuer: {
		Role:       id.RoleValuer,
		StageIndex: 2,
		Action:     ActionVerify,
		AllowList: []string{
			FieldTitle, FieldSummary, FieldApplicantName,
			FieldTrusteeName, FieldAmount, FieldConsideration, FieldStampDuty,
		},
		EditList:        []string{FieldTrusteeName, FieldAmount, FieldConsideration},
		CorrectionTypes: []models.CorrectionType{models.CorrectionTrustee, models.CorrectionAmount},
	},
	id.RoleSurveyor: {
		Role:       id.RoleSurveyor,
		StageIndex: 3,
		Action:     ActionVerify,
		AllowList: []string{
			FieldTitle, FieldSummary, FieldApplicantName,
			FieldLandExtent, FieldPlotNumber, FieldSurveyNumber,
		},
		EditList:        []string{FieldLandExtent, FieldPlotNumber, FieldSurveyNumber},
		CorrectionTypes: []models.CorrectionType{models.CorrectionLand, models.CorrectionPlot},
	},
	id.RoleExaminer: {
		Role:           id.RoleExaminer,
		StageIndex:     4,
		Action:         ActionCrossVerify,
		AllowAllFields: true,
		// The examiner is explicitly empowered to fix data introduced by
		// earlier stages, so its edit list is the union of theirs.
		EditList: []string{
			FieldApplicantName, FieldApplicantContact, FieldWitnessNames,
			FieldTrusteeName, FieldAmount, FieldConsideration,
			FieldLandExtent, FieldPlotNumber, FieldSurveyNumber,
		},
	},
	id.RoleRegistrar: {
		Role:           id.RoleRegistrar,
		StageIndex:     5,
		Action:         ActionFinalize,
		AllowAllFields: true,
		// Finalizing decides and locks; it never edits content.
		EditList: nil,
	},
}

// For returns the policy for a role.
//
// Errors: CodeForbidden when the role is unknown; a caller with no policy has
// no capabilities at all.
func For(role id.Role) (*RolePolicy, error) {
	p, ok := rolePolicies[role]
	if !ok {
		return nil, dErrors.New(dErrors.CodeForbidden, "no policy for role")
	}
	return p, nil
}

// FilterFields returns the subset of fields the role may see. It is total:
// keys outside the allow-list are dropped, never leaked, whatever the record
// contains.
func FilterFields(fields map[string]string, role id.Role) map[string]string {
	filtered := make(map[string]string)
	p, ok := rolePolicies[role]
	if !ok {
		return filtered
	}
	if p.AllowAllFields {
		for k, v := range fields {
			filtered[k] = v
		}
		return filtered
	}
	for _, name := range p.AllowList {
		if v, ok := fields[name]; ok {
			filtered[name] = v
		}
	}
	return filtered
}

// CanEditField reports whether the role may write the named field.
func CanEditField(field string, role id.Role) bool {
	p, ok := rolePolicies[role]
	if !ok {
		return false
	}
	for _, name := range p.EditList {
		if name == field {
			return true
		}
	}
	return false
}

// AllowedAction returns the transition operation the role may invoke.
func AllowedAction(role id.Role) (Action, error) {
	p, err := For(role)
	if err != nil {
		return "", err
	}
	return p.Action, nil
}

// AllowsCorrectionType reports whether the role may tag corrections with the
// given type.
func (p *RolePolicy) AllowsCorrectionType(ct models.CorrectionType) bool {
	for _, allowed := range p.CorrectionTypes {
		if allowed == ct {
			return true
		}
	}
	return false
}
