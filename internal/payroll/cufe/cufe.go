// Package cufe computes the unique content key (CUFE) the tax authority uses
// to identify and deduplicate an electronic payroll document.
//
// The key is a SHA-384 digest over a fixed-order concatenation of the
// document's identifying fields. The order and string formatting are part of
// the compliance contract: they must never change for already-issued
// documents, since the authority deduplicates on this value and the key is
// the tamper-evidence anchor for the signed artifact.
package cufe

import (
	"crypto/sha512"
	"encoding/hex"
	"time"

	"github.com/shopspring/decimal"

	dErrors "nomina/pkg/domain-errors"
)

// dateLayout is the canonical date representation inside the concatenation.
const dateLayout = "2006-01-02"

// Inputs are the seven fields that feed the key, in concatenation order.
type Inputs struct {
	DocumentNumber  string
	GenerationDate  time.Time
	EmployerTaxID   string
	SubjectTaxID    string
	GrossTotal      decimal.Decimal
	DeductionsTotal decimal.Decimal
	NetTotal        decimal.Decimal
}

func (in Inputs) validate() error {
	if in.DocumentNumber == "" {
		return dErrors.New(dErrors.CodeValidation, "cufe: document number is required")
	}
	if in.GenerationDate.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "cufe: generation date is required")
	}
	if in.EmployerTaxID == "" {
		return dErrors.New(dErrors.CodeValidation, "cufe: employer tax id is required")
	}
	if in.SubjectTaxID == "" {
		return dErrors.New(dErrors.CodeValidation, "cufe: subject tax id is required")
	}
	return nil
}

// Compute returns the 96-hex-character content key. Pure and deterministic:
// identical inputs always produce an identical key.
//
// Canonical string forms: dates as YYYY-MM-DD, monetary values in minimal
// decimal notation (no trailing zeros, no separators).
func Compute(in Inputs) (string, error) {
	if err := in.validate(); err != nil {
		return "", err
	}

	concat := in.DocumentNumber +
		in.GenerationDate.Format(dateLayout) +
		in.EmployerTaxID +
		in.SubjectTaxID +
		in.GrossTotal.String() +
		in.DeductionsTotal.String() +
		in.NetTotal.String()

	sum := sha512.Sum384([]byte(concat))
	return hex.EncodeToString(sum[:]), nil
}
