package handler

import (
	"strings"
	"time"

	"nomina/internal/payroll/models"
	dErrors "nomina/pkg/domain-errors"
)

// dateLayout is the wire format for the generation date; payroll periods are
// calendar days, not instants.
const dateLayout = "2006-01-02"

// CreateDocumentRequest is the HTTP request body for POST /payroll/documents.
// The entry and employer blocks are stored verbatim as the document's
// snapshots.
type CreateDocumentRequest struct {
	DocumentNumber string              `json:"document_number"`
	GenerationDate string              `json:"generation_date"`
	Entry          models.PayrollEntry `json:"entry"`
	Employer       models.Employer     `json:"employer"`

	// Parsed values (populated by Validate)
	parsedDate time.Time
}

// Validate validates and parses the request. Deep snapshot validation
// happens in the domain constructor; this catches wire-level problems first.
func (r *CreateDocumentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request body is required")
	}

	r.DocumentNumber = strings.TrimSpace(r.DocumentNumber)
	if r.DocumentNumber == "" {
		return dErrors.New(dErrors.CodeValidation, "document_number is required")
	}
	if len(r.DocumentNumber) > 64 {
		return dErrors.New(dErrors.CodeValidation, "document_number must be at most 64 characters")
	}

	if r.GenerationDate == "" {
		return dErrors.New(dErrors.CodeValidation, "generation_date is required")
	}
	date, err := time.Parse(dateLayout, r.GenerationDate)
	if err != nil {
		return dErrors.Newf(dErrors.CodeValidation, "generation_date must be YYYY-MM-DD, got %q", r.GenerationDate)
	}
	r.parsedDate = date

	return nil
}

// ParsedGenerationDate returns the validated generation date.
func (r *CreateDocumentRequest) ParsedGenerationDate() time.Time {
	return r.parsedDate
}

// ProcessDraftsRequest is the HTTP request body for POST
// /payroll/documents/process-drafts. Concurrency zero means the server
// default.
type ProcessDraftsRequest struct {
	Concurrency int `json:"concurrency"`
}

// Validate bounds the requested concurrency.
func (r *ProcessDraftsRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request body is required")
	}
	if r.Concurrency < 0 || r.Concurrency > 32 {
		return dErrors.New(dErrors.CodeValidation, "concurrency must be between 0 and 32")
	}
	return nil
}
