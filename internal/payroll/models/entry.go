package models

import (
	"time"

	"github.com/shopspring/decimal"

	dErrors "nomina/pkg/domain-errors"
)

// ConceptKind discriminates payroll line items. The XML builder maps each
// kind to its schema element name through an explicit table; an unmapped
// kind is a construction-time error, never a silent fallback.
type ConceptKind string

const (
	KindBasic          ConceptKind = "BASICO"
	KindOvertime       ConceptKind = "HORAS_EXTRAS"
	KindCommission     ConceptKind = "COMISION"
	KindBonus          ConceptKind = "BONIFICACION"
	KindTransportAid   ConceptKind = "AUXILIO_TRANSPORTE"
	KindOtherAccrual   ConceptKind = "OTRO_CONCEPTO"
	KindHealth         ConceptKind = "SALUD"
	KindPension        ConceptKind = "PENSION"
	KindOtherDeduction ConceptKind = "OTRA_DEDUCCION"
)

// IsAccrual reports whether the kind belongs in the Devengados block.
func (k ConceptKind) IsAccrual() bool {
	switch k {
	case KindBasic, KindOvertime, KindCommission, KindBonus, KindTransportAid, KindOtherAccrual:
		return true
	}
	return false
}

// IsDeduction reports whether the kind belongs in the Deducciones block.
func (k ConceptKind) IsDeduction() bool {
	switch k {
	case KindHealth, KindPension, KindOtherDeduction:
		return true
	}
	return false
}

// LineItem is one monetary concept on a payroll entry.
type LineItem struct {
	Kind        ConceptKind     `json:"kind"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	// Percentage applies to health/pension deductions; zero means unset.
	Percentage decimal.Decimal `json:"percentage,omitempty"`
}

// ContractType follows the authority's numbering for employment contracts.
type ContractType string

const (
	ContractIndefinite  ContractType = "INDEFINIDO"
	ContractFixedTerm   ContractType = "FIJO"
	ContractPerProject  ContractType = "OBRA"
	ContractApprentice  ContractType = "APRENDIZAJE"
	ContractServices    ContractType = "PRESTACION"
)

// IsValid reports whether the contract type is one the schema knows.
func (c ContractType) IsValid() bool {
	switch c {
	case ContractIndefinite, ContractFixedTerm, ContractPerProject, ContractApprentice, ContractServices:
		return true
	}
	return false
}

// SchemaCode returns the numeric contract code the schema expects. Only
// defined for valid contract types; Validate rejects everything else before
// a document reaches the builder.
func (c ContractType) SchemaCode() string {
	switch c {
	case ContractFixedTerm:
		return "2"
	case ContractPerProject:
		return "3"
	case ContractApprentice:
		return "4"
	case ContractServices:
		return "5"
	default:
		return "1"
	}
}

// BankAccount holds optional payment routing details. A zero value means the
// employee is paid in cash and the bank sub-block is omitted from the XML.
type BankAccount struct {
	Bank          string `json:"bank,omitempty"`
	AccountType   string `json:"account_type,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
}

// Present reports whether there is enough data to emit the bank sub-block.
func (b BankAccount) Present() bool {
	return b.Bank != "" && b.AccountNumber != ""
}

// Employee is a read-only input to the pipeline; it is never mutated.
type Employee struct {
	DocumentType   string       `json:"document_type"`
	DocumentNumber string       `json:"document_number"`
	FirstSurname   string       `json:"first_surname"`
	SecondSurname  string       `json:"second_surname,omitempty"`
	FirstName      string       `json:"first_name"`
	OtherNames     string       `json:"other_names,omitempty"`
	WorkerType     string       `json:"worker_type"`
	WorkerSubType  string       `json:"worker_sub_type"`
	Country        string       `json:"country"`
	State          string       `json:"state"`
	City           string       `json:"city"`
	Address        string       `json:"address"`
	ContractType   ContractType `json:"contract_type"`
	BaseSalary     decimal.Decimal `json:"base_salary"`
	HireDate       time.Time    `json:"hire_date"`
	PaymentMethod  string       `json:"payment_method"`
	BankAccount    BankAccount  `json:"bank_account,omitempty"`
}

// PayrollEntry is the per-employee, per-period read model the pipeline
// consumes. Totals are carried explicitly rather than derived so the CUFE
// inputs are exactly what the closed period reported.
type PayrollEntry struct {
	Employee        Employee        `json:"employee"`
	PeriodStart     time.Time       `json:"period_start"`
	PeriodEnd       time.Time       `json:"period_end"`
	WorkedDays      int             `json:"worked_days"`
	Accruals        []LineItem      `json:"accruals"`
	Deductions      []LineItem      `json:"deductions"`
	GrossTotal      decimal.Decimal `json:"gross_total"`
	DeductionsTotal decimal.Decimal `json:"deductions_total"`
	NetTotal        decimal.Decimal `json:"net_total"`
}

// Validate checks the identity fields the builder and hasher cannot work
// without. Block-level validation (kind placement) happens in the builder.
func (e PayrollEntry) Validate() error {
	if e.Employee.DocumentNumber == "" {
		return dErrors.New(dErrors.CodeValidation, "employee document number is required")
	}
	if !e.Employee.ContractType.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "unknown contract type %q", e.Employee.ContractType)
	}
	if e.PeriodStart.IsZero() || e.PeriodEnd.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "payroll period dates are required")
	}
	if e.GrossTotal.IsZero() && len(e.Accruals) == 0 {
		return dErrors.New(dErrors.CodeValidation, "payroll entry has no accruals")
	}
	for _, item := range e.Accruals {
		if !item.Kind.IsAccrual() {
			return dErrors.Newf(dErrors.CodeValidation, "concept kind %q is not an accrual", item.Kind)
		}
	}
	for _, item := range e.Deductions {
		if !item.Kind.IsDeduction() {
			return dErrors.Newf(dErrors.CodeValidation, "concept kind %q is not a deduction", item.Kind)
		}
	}
	return nil
}

// Employer is the organization-side read model: tax identity plus address.
type Employer struct {
	TaxID         string `json:"tax_id"`
	CheckDigit    string `json:"check_digit"`
	BusinessName  string `json:"business_name"`
	Country       string `json:"country"`
	State         string `json:"state"`
	City          string `json:"city"`
	Address       string `json:"address"`
}

func (e Employer) Validate() error {
	if e.TaxID == "" {
		return dErrors.New(dErrors.CodeValidation, "employer tax id is required")
	}
	if e.BusinessName == "" {
		return dErrors.New(dErrors.CodeValidation, "employer business name is required")
	}
	return nil
}
