package models

import (
	"time"

	"github.com/google/uuid"

	dErrors "nomina/pkg/domain-errors"
)

// DocumentState is the lifecycle state of an electronic payroll document.
//
// Transitions are linear and stage-driven:
//
//	DRAFT → XML_GENERATED → SIGNED → SUBMITTED → {VALIDATED | REJECTED | ERROR}
//
// VALIDATED, REJECTED and ERROR are terminal. No transition skips a stage.
type DocumentState string

const (
	StateDraft        DocumentState = "DRAFT"
	StateXMLGenerated DocumentState = "XML_GENERATED"
	StateSigned       DocumentState = "SIGNED"
	StateSubmitted    DocumentState = "SUBMITTED"
	StateValidated    DocumentState = "VALIDATED"
	StateRejected     DocumentState = "REJECTED"
	StateError        DocumentState = "ERROR"
)

var stateSuccessors = map[DocumentState][]DocumentState{
	StateDraft:        {StateXMLGenerated},
	StateXMLGenerated: {StateSigned},
	StateSigned:       {StateSubmitted, StateError},
	StateSubmitted:    {StateValidated, StateRejected, StateError},
}

// IsTerminal reports whether no further transition is allowed.
func (s DocumentState) IsTerminal() bool {
	return s == StateValidated || s == StateRejected || s == StateError
}

// IsValid reports whether s is a known lifecycle state.
func (s DocumentState) IsValid() bool {
	switch s {
	case StateDraft, StateXMLGenerated, StateSigned, StateSubmitted,
		StateValidated, StateRejected, StateError:
		return true
	}
	return false
}

// CanTransitionTo reports whether s → next is a legal transition.
func (s DocumentState) CanTransitionTo(next DocumentState) bool {
	for _, allowed := range stateSuccessors[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ElectronicDocument is the aggregate persisted across the pipeline. It keeps
// a snapshot of the payroll entry and employer it was generated from, so the
// compliance record stays reproducible even if the source data later changes.
//
// Invariants:
//   - XMLSigned is non-empty iff State ∈ {SIGNED, SUBMITTED, VALIDATED, REJECTED, ERROR-after-sign}
//   - TrackingID is non-empty iff State ∈ {SUBMITTED, VALIDATED, REJECTED}
//   - CUFE is set once and never recomputed after signing
//   - XMLUnsigned is immutable once signed
type ElectronicDocument struct {
	ID             uuid.UUID     `json:"id"`
	DocumentNumber string        `json:"document_number"`
	GenerationDate time.Time     `json:"generation_date"`
	Entry          PayrollEntry  `json:"entry"`
	Employer       Employer      `json:"employer"`
	XMLUnsigned    string        `json:"-"`
	XMLSigned      string        `json:"-"`
	CUFE           string        `json:"cufe,omitempty"`
	State          DocumentState `json:"state"`

	// Authority response fields, populated after a submission attempt.
	ResponseCode    string `json:"response_code,omitempty"`
	ResponseMessage string `json:"response_message,omitempty"`
	TrackingID      string `json:"tracking_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDocument creates a DRAFT document for a payroll entry.
func NewDocument(id uuid.UUID, number string, generationDate time.Time, entry PayrollEntry, employer Employer, now time.Time) (*ElectronicDocument, error) {
	if number == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "document number is required")
	}
	if generationDate.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "generation date is required")
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	if err := employer.Validate(); err != nil {
		return nil, err
	}
	return &ElectronicDocument{
		ID:             id,
		DocumentNumber: number,
		GenerationDate: generationDate,
		Entry:          entry,
		Employer:       employer,
		State:          StateDraft,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Transition moves the document to next, enforcing the lifecycle order.
func (d *ElectronicDocument) Transition(next DocumentState, now time.Time) error {
	if !next.IsValid() {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "unknown document state %q", next)
	}
	if !d.State.CanTransitionTo(next) {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"illegal transition %s → %s for document %s", d.State, next, d.DocumentNumber)
	}
	d.State = next
	d.UpdatedAt = now
	return nil
}

// Signed reports whether the document carries a signed artifact.
func (d *ElectronicDocument) Signed() bool {
	return d.XMLSigned != ""
}
