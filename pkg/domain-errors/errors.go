// Package domainerrors provides coded errors for the payroll compliance
// pipeline. Each pipeline stage returns one of these codes so the
// orchestrator can classify failures without string matching, and so HTTP
// handlers can map them to status codes in one place.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies the class of a domain error.
type Code string

const (
	// CodeValidation marks missing or malformed input, caught before any
	// network or crypto work.
	CodeValidation Code = "validation"

	// CodeCertificate marks a certificate bundle that could not be loaded or
	// decrypted.
	CodeCertificate Code = "certificate"

	// CodeSigning marks a cryptographic failure while producing a signature.
	CodeSigning Code = "signing"

	// CodeTransport marks a network failure or timeout talking to the
	// authority endpoint.
	CodeTransport Code = "transport"

	// CodeRejected marks a well-formed authority response indicating
	// rejection or containing a SOAP Fault.
	CodeRejected Code = "rejected"

	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal"
)

// Error is a coded domain error. Use New/Wrap to construct.
type Error struct {
	code    Code
	message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *Error) Unwrap() error { return e.cause }

// Code returns the classification of the error.
func (e *Error) Code() Code { return e.code }

// New creates a coded error with a message.
func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. The cause remains
// reachable through errors.Is/As.
func Wrap(err error, code Code, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

// CodeOf extracts the code from err, walking the wrap chain. Returns
// CodeInternal for non-domain errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.code
	}
	return CodeInternal
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.code == code
	}
	return false
}
