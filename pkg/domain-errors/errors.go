// Package domainerrors defines the typed error vocabulary shared by services,
// handlers, and the audit trail. Every denial crossing a package boundary
// carries a stable Code so callers can branch on kind instead of message text.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error kind. Codes are part of the public
// API: they appear in HTTP responses and audit entries, so renaming one is a
// breaking change.
type Code string

const (
	CodeBadRequest   Code = "bad_request"
	CodeValidation   Code = "validation_error"
	CodeInvalidInput Code = "invalid_input"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeInternal     Code = "internal_error"

	// Workflow denial kinds. These are the reasons the gatekeeper and
	// transition engine hand back to callers and write to the audit trail.
	CodePrerequisiteNotMet  Code = "prerequisite_not_met"
	CodeAlreadyDecided      Code = "already_decided"
	CodeRecordLocked        Code = "record_locked"
	CodeUnauthorizedField   Code = "unauthorized_field"
	CodePersistenceConflict Code = "persistence_conflict"
)

// Error couples a Code with a human-readable message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is match on Code so callers can compare against a bare
// New(code, "") sentinel without caring about messages.
func (e *Error) Is(target error) bool {
	var de *Error
	if errors.As(target, &de) {
		return e.Code == de.Code
	}
	return false
}

// New constructs a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf constructs a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, preserving the
// cause chain for errors.Is/errors.As.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the Code from an error chain. Unknown errors report
// CodeInternal so nothing leaks an unclassified failure to a caller.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the error chain carries the given code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}
