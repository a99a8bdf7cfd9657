// Package audit records the compliance trail of document state transitions.
// Every pipeline stage outcome is emitted as an event; operators reconstruct
// how far a document progressed from this trail.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Action identifies what happened to a document.
type Action string

const (
	ActionDocumentCreated Action = "document.created"
	ActionXMLGenerated    Action = "document.xml_generated"
	ActionSigned          Action = "document.signed"
	ActionSubmitted       Action = "document.submitted"
	ActionValidated       Action = "document.validated"
	ActionRejected        Action = "document.rejected"
	ActionErrored         Action = "document.errored"
	ActionStatusRefreshed Action = "document.status_refreshed"
)

// Event is one entry in the compliance trail.
type Event struct {
	ID             uuid.UUID `json:"id"`
	DocumentID     uuid.UUID `json:"document_id"`
	DocumentNumber string    `json:"document_number"`
	Action         Action    `json:"action"`
	Detail         string    `json:"detail,omitempty"`
	At             time.Time `json:"at"`
}

// Publisher delivers events to the trail. Emit failures must not break the
// pipeline; callers log and continue.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
	Close() error
}
