package handler

import (
	"strings"

	"attesta/internal/document/models"
	"attesta/internal/policy"
	dErrors "attesta/pkg/domain-errors"
	pkgstrings "attesta/pkg/platform/strings"
)

const (
	maxNotesLen      = 2000
	maxFieldValueLen = 4000
	maxFieldCount    = 64
)

// SubmitRequest is the body for POST /documents.
type SubmitRequest struct {
	ServiceKind string            `json:"service_kind"`
	Fields      map[string]string `json:"fields"`
	Extra       map[string]string `json:"extra"`

	parsedKind models.ServiceKind
}

func (r *SubmitRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	kind, err := models.ParseServiceKind(strings.TrimSpace(r.ServiceKind))
	if err != nil {
		return err
	}
	r.parsedKind = kind

	if len(r.Fields) > maxFieldCount {
		return dErrors.New(dErrors.CodeValidation, "too many fields")
	}
	fields, err := normalizeFields(r.Fields)
	if err != nil {
		return err
	}
	r.Fields = fields

	// Witness names arrive as a comma-separated list and are stored
	// deduplicated.
	if names, ok := r.Fields[policy.FieldWitnessNames]; ok {
		r.Fields[policy.FieldWitnessNames] = strings.Join(pkgstrings.DedupeAndTrim(strings.Split(names, ",")), ", ")
	}
	return nil
}

// ParsedServiceKind returns the validated service kind.
func (r *SubmitRequest) ParsedServiceKind() models.ServiceKind {
	return r.parsedKind
}

// VerifyRequest is the body for POST /documents/{id}/verify.
type VerifyRequest struct {
	Decision       string            `json:"decision"`
	Notes          string            `json:"notes"`
	CorrectionType string            `json:"correction_type"`
	Corrections    map[string]string `json:"corrections"`

	parsedDecision models.Decision
}

func (r *VerifyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	decision, err := models.ParseDecision(strings.TrimSpace(r.Decision))
	if err != nil {
		return err
	}
	r.parsedDecision = decision

	if len(r.Notes) > maxNotesLen {
		return dErrors.New(dErrors.CodeValidation, "notes too long")
	}
	corrections, err := normalizeFields(r.Corrections)
	if err != nil {
		return err
	}
	r.Corrections = corrections
	return nil
}

// ParsedDecision returns the validated decision.
func (r *VerifyRequest) ParsedDecision() models.Decision {
	return r.parsedDecision
}

// CrossVerifyRequest is the body for POST /documents/{id}/cross-verify.
type CrossVerifyRequest struct {
	Decision    string            `json:"decision"`
	Notes       string            `json:"notes"`
	Corrections map[string]string `json:"corrections"`

	parsedDecision models.Decision
}

func (r *CrossVerifyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	decision, err := models.ParseDecision(strings.TrimSpace(r.Decision))
	if err != nil {
		return err
	}
	r.parsedDecision = decision

	if len(r.Notes) > maxNotesLen {
		return dErrors.New(dErrors.CodeValidation, "notes too long")
	}
	corrections, err := normalizeFields(r.Corrections)
	if err != nil {
		return err
	}
	r.Corrections = corrections
	return nil
}

// ParsedDecision returns the validated decision.
func (r *CrossVerifyRequest) ParsedDecision() models.Decision {
	return r.parsedDecision
}

// FinalizeRequest is the body for POST /documents/{id}/finalize.
type FinalizeRequest struct {
	Decision string `json:"decision"`
	Remarks  string `json:"remarks"`
	Lock     bool   `json:"lock"`

	parsedDecision models.Decision
}

func (r *FinalizeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	decision, err := models.ParseDecision(strings.TrimSpace(r.Decision))
	if err != nil {
		return err
	}
	r.parsedDecision = decision

	if len(r.Remarks) > maxNotesLen {
		return dErrors.New(dErrors.CodeValidation, "remarks too long")
	}
	return nil
}

// ParsedDecision returns the validated decision.
func (r *FinalizeRequest) ParsedDecision() models.Decision {
	return r.parsedDecision
}

// normalizeFields lower-cases and trims field names, rejecting duplicates
// that would collapse onto one key and values past the size cap. Whether a
// name is permitted for the caller's role stays a policy decision.
func normalizeFields(fields map[string]string) (map[string]string, error) {
	if len(fields) == 0 {
		return fields, nil
	}

	keys := make([]string, 0, len(fields))
	normalized := make(map[string]string, len(fields))
	for k, v := range fields {
		name := strings.ToLower(strings.TrimSpace(k))
		if name == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "field names cannot be empty")
		}
		if len(v) > maxFieldValueLen {
			return nil, dErrors.Newf(dErrors.CodeValidation, "value for %s too long", name)
		}
		keys = append(keys, k)
		normalized[name] = v
	}
	if len(pkgstrings.DedupeAndTrimLower(keys)) != len(fields) {
		return nil, dErrors.New(dErrors.CodeValidation, "duplicate field names")
	}
	return normalized, nil
}
