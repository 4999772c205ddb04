package policy

import (
	"attesta/internal/document/models"
	id "attesta/pkg/domain"
)

// Precedence maps each role to the set of stages that must be approved before
// it may act. It is configured per service kind rather than hard-coded: for
// land-bound documents the valuer and surveyor review in parallel off the
// clerk's approval, while deed kinds without land particulars run strictly
// sequentially. The examiner always waits for all three upstream stages and
// the registrar for all four.
type Precedence map[id.Role][]id.Role

// linearPrecedence is the default strict pipeline: clerk < valuer < surveyor
// < examiner < registrar.
var linearPrecedence = Precedence{
	id.RoleClerk:     nil,
	id.RoleValuer:    {id.RoleClerk},
	id.RoleSurveyor:  {id.RoleClerk, id.RoleValuer},
	id.RoleExaminer:  {id.RoleClerk, id.RoleValuer, id.RoleSurveyor},
	id.RoleRegistrar: {id.RoleClerk, id.RoleValuer, id.RoleSurveyor, id.RoleExaminer},
}

// siblingPrecedence gates the valuer and surveyor on the clerk alone so land
// verification and valuation proceed in parallel.
var siblingPrecedence = Precedence{
	id.RoleClerk:     nil,
	id.RoleValuer:    {id.RoleClerk},
	id.RoleSurveyor:  {id.RoleClerk},
	id.RoleExaminer:  {id.RoleClerk, id.RoleValuer, id.RoleSurveyor},
	id.RoleRegistrar: {id.RoleClerk, id.RoleValuer, id.RoleSurveyor, id.RoleExaminer},
}

// kindPrecedence assigns a precedence table per service kind. Absent kinds
// fall back to the linear pipeline.
var kindPrecedence = map[models.ServiceKind]Precedence{
	models.KindSaleDeed:             siblingPrecedence,
	models.KindPropertyRegistration: siblingPrecedence,
	models.KindWillDeed:             linearPrecedence,
	models.KindTrustDeed:            linearPrecedence,
	models.KindPowerOfAttorney:      linearPrecedence,
	models.KindAdoptionDeed:         linearPrecedence,
}

// PrecedenceFor returns the stage precedence table for a service kind.
func PrecedenceFor(kind models.ServiceKind) Precedence {
	if p, ok := kindPrecedence[kind]; ok {
		return p
	}
	return linearPrecedence
}

// Prerequisites returns the roles that must have approved before the given
// role may act on a document of this kind.
func (p Precedence) Prerequisites(role id.Role) []id.Role {
	return p[role]
}
