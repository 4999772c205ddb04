package domain

import dErrors "attesta/pkg/domain-errors"

// Role is the reviewer role a caller acts under. Each role owns exactly one
// review stage; the mapping from role to stage behavior lives in the policy
// package as data, not here.
//
// Usage: construct via ParseRole when reading a role claim from a verified
// token. The core never trusts a client-supplied role string directly.
type Role string

// The five review roles, in pipeline order.
const (
	RoleClerk     Role = "clerk"     // stage 1: intake scrutiny
	RoleValuer    Role = "valuer"    // stage 2: valuation and trust details
	RoleSurveyor  Role = "surveyor"  // stage 3: land and plot verification
	RoleExaminer  Role = "examiner"  // stage 4: cross-verification
	RoleRegistrar Role = "registrar" // stage 5: final decision and lock
)

// validRoles is the single source of truth for supported roles.
var validRoles = map[Role]bool{
	RoleClerk:     true,
	RoleValuer:    true,
	RoleSurveyor:  true,
	RoleExaminer:  true,
	RoleRegistrar: true,
}

// Roles lists all review roles in pipeline order.
func Roles() []Role {
	return []Role{RoleClerk, RoleValuer, RoleSurveyor, RoleExaminer, RoleRegistrar}
}

// ParseRole constructs a Role from external input.
//
// Errors: CodeInvalidInput when the value is empty or unsupported.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "role cannot be empty")
	}
	r := Role(s)
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown role")
	}
	return r, nil
}

// IsValid checks if the role is one of the supported review roles.
func (r Role) IsValid() bool {
	return validRoles[r]
}

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}
