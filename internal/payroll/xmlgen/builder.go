// Package xmlgen builds the unsigned electronic payroll XML document
// following the authority's NominaIndividual schema.
//
// The builder is a pure transformation: domain data in, canonical XML string
// out. It performs no I/O and takes every time-dependent value (generation
// timestamp) as input, so building twice from unchanged inputs yields
// byte-identical output.
package xmlgen

import (
	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"nomina/internal/payroll/models"
	dErrors "nomina/pkg/domain-errors"
)

// Schema-level constants. Ambiente selects the authority environment the
// document is addressed to; TipoXML 102 is an individual payroll document.
const (
	formatVersion      = "V1.0: Documento Soporte de Pago de Nómina Electrónica"
	documentTypeCode   = "102"
	ambientProduction  = "1"
	ambientTest        = "2"
	defaultPaymentForm = "1"
	cashPaymentMethod  = "10"

	rootNamespace   = "dian:gov:co:facturaelectronica:NominaIndividual"
	xsiNamespace    = "http://www.w3.org/2001/XMLSchema-instance"
	schemaLocation  = rootNamespace + " http://www.dian.gov.co/micrositios/fac_electronica/documentos/XSD/NominaIndividualElectronica.xsd"
	dateLayout      = "2006-01-02"
	timeLayout      = "15:04:05-07:00"
)

// accrualElements maps itemized accrual kinds (everything but the basic
// salary, which has its own block) to their schema element names. The map is
// exhaustive over models.ConceptKind accrual values; Build rejects kinds it
// does not know instead of guessing an element name.
var accrualElements = map[models.ConceptKind]string{
	models.KindOvertime:     "HoraExtra",
	models.KindCommission:   "Comisiones",
	models.KindBonus:        "BonoEPCTV",
	models.KindTransportAid: "Auxilio",
	models.KindOtherAccrual: "OtroConcepto",
}

// Builder turns a document aggregate into unsigned XML.
type Builder struct {
	production bool
}

// New creates a Builder. production selects the Ambiente flag emitted in the
// general-information block.
func New(production bool) *Builder {
	return &Builder{production: production}
}

// Build produces the unsigned XML for doc. Generation is all-or-nothing: on
// any validation failure nothing is emitted.
//
// Section order is fixed by the schema: InformacionGeneral, Empleador,
// Trabajador, Pago, Devengados, Deducciones. Optional sub-blocks are omitted
// entirely when the underlying data is absent; the schema distinguishes
// "absent" from "zero".
func (b *Builder) Build(doc *models.ElectronicDocument) (string, error) {
	if doc.DocumentNumber == "" {
		return "", dErrors.New(dErrors.CodeValidation, "build: document number is required")
	}
	if doc.GenerationDate.IsZero() {
		return "", dErrors.New(dErrors.CodeValidation, "build: generation date is required")
	}
	if err := doc.Employer.Validate(); err != nil {
		return "", err
	}
	if err := doc.Entry.Validate(); err != nil {
		return "", err
	}
	for _, item := range doc.Entry.Accruals {
		if item.Kind == models.KindBasic {
			continue
		}
		if _, ok := accrualElements[item.Kind]; !ok {
			return "", dErrors.Newf(dErrors.CodeValidation, "build: no schema element for concept kind %q", item.Kind)
		}
	}

	tree := etree.NewDocument()
	tree.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := tree.CreateElement("NominaIndividual")
	root.CreateAttr("xmlns", rootNamespace)
	root.CreateAttr("xmlns:xsi", xsiNamespace)
	root.CreateAttr("xsi:schemaLocation", schemaLocation)

	b.addGeneralInfo(root, doc)
	addEmployer(root, doc.Employer)
	addEmployee(root, doc.Entry.Employee)
	addPayment(root, doc.Entry.Employee)
	addAccruals(root, doc.Entry)
	addDeductions(root, doc.Entry)

	tree.Indent(2)
	out, err := tree.WriteToString()
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "build: serialize document")
	}
	return out, nil
}

func (b *Builder) addGeneralInfo(root *etree.Element, doc *models.ElectronicDocument) {
	general := root.CreateElement("InformacionGeneral")
	text(general, "Version", formatVersion)
	if b.production {
		text(general, "Ambiente", ambientProduction)
	} else {
		text(general, "Ambiente", ambientTest)
	}
	text(general, "TipoXML", documentTypeCode)
	text(general, "NumeroDocumento", doc.DocumentNumber)
	text(general, "FechaGen", doc.GenerationDate.Format(dateLayout))
	text(general, "HoraGen", doc.GenerationDate.Format(timeLayout))

	period := general.CreateElement("PeriodoNomina")
	text(period, "FechaIngreso", doc.Entry.Employee.HireDate.Format(dateLayout))
	text(period, "FechaLiquidacionInicio", doc.Entry.PeriodStart.Format(dateLayout))
	text(period, "FechaLiquidacionFin", doc.Entry.PeriodEnd.Format(dateLayout))
	text(period, "TiempoLaborado", decimal.NewFromInt(int64(doc.Entry.WorkedDays)).String())
	text(period, "FechaGen", doc.GenerationDate.Format(dateLayout))
}

func addEmployer(root *etree.Element, employer models.Employer) {
	elem := root.CreateElement("Empleador")
	text(elem, "NIT", employer.TaxID)
	text(elem, "DV", employer.CheckDigit)
	text(elem, "RazonSocial", employer.BusinessName)
	text(elem, "Pais", orDefault(employer.Country, "CO"))
	text(elem, "DepartamentoEstado", employer.State)
	text(elem, "MunicipioCiudad", employer.City)
	text(elem, "Direccion", employer.Address)
}

func addEmployee(root *etree.Element, emp models.Employee) {
	elem := root.CreateElement("Trabajador")
	text(elem, "TipoTrabajador", emp.WorkerType)
	text(elem, "SubTipoTrabajador", emp.WorkerSubType)
	text(elem, "AltoRiesgoPension", "false")
	text(elem, "TipoDocumento", emp.DocumentType)
	text(elem, "NumeroDocumento", emp.DocumentNumber)
	text(elem, "PrimerApellido", emp.FirstSurname)
	if emp.SecondSurname != "" {
		text(elem, "SegundoApellido", emp.SecondSurname)
	}
	text(elem, "PrimerNombre", emp.FirstName)
	if emp.OtherNames != "" {
		text(elem, "OtrosNombres", emp.OtherNames)
	}
	text(elem, "LugarTrabajoPais", emp.Country)
	text(elem, "LugarTrabajoDepartamentoEstado", emp.State)
	text(elem, "LugarTrabajoMunicipioCiudad", emp.City)
	text(elem, "LugarTrabajoDireccion", emp.Address)
	text(elem, "TipoContrato", emp.ContractType.SchemaCode())
	text(elem, "Sueldo", emp.BaseSalary.String())
}

func addPayment(root *etree.Element, emp models.Employee) {
	pago := root.CreateElement("Pago")
	text(pago, "Forma", defaultPaymentForm)
	text(pago, "Metodo", orDefault(emp.PaymentMethod, cashPaymentMethod))

	// Bank details are an optional sub-block: omitted entirely, never empty.
	if emp.BankAccount.Present() {
		text(pago, "Banco", emp.BankAccount.Bank)
		text(pago, "TipoCuenta", emp.BankAccount.AccountType)
		text(pago, "NumeroCuenta", emp.BankAccount.AccountNumber)
	}
}

func addAccruals(root *etree.Element, entry models.PayrollEntry) {
	devengados := root.CreateElement("Devengados")

	for _, item := range entry.Accruals {
		if item.Kind != models.KindBasic {
			continue
		}
		basico := devengados.CreateElement("Basico")
		text(basico, "DiasTrabajados", decimal.NewFromInt(int64(entry.WorkedDays)).String())
		text(basico, "SueldoTrabajado", item.Amount.String())
	}

	for _, item := range entry.Accruals {
		if item.Kind == models.KindBasic {
			continue
		}
		elem := devengados.CreateElement(accrualElements[item.Kind])
		text(elem, "Descripcion", item.Description)
		text(elem, "Valor", item.Amount.String())
	}

	text(devengados, "Total", entry.GrossTotal.String())
}

func addDeductions(root *etree.Element, entry models.PayrollEntry) {
	// The whole block is absent when there are no deductions.
	if len(entry.Deductions) == 0 {
		return
	}

	deducciones := root.CreateElement("Deducciones")

	for _, item := range entry.Deductions {
		if item.Kind != models.KindHealth {
			continue
		}
		salud := deducciones.CreateElement("Salud")
		text(salud, "Porcentaje", percentageOrDefault(item.Percentage))
		text(salud, "Deduccion", item.Amount.String())
	}
	for _, item := range entry.Deductions {
		if item.Kind != models.KindPension {
			continue
		}
		pension := deducciones.CreateElement("FondoPension")
		text(pension, "Porcentaje", percentageOrDefault(item.Percentage))
		text(pension, "Deduccion", item.Amount.String())
	}

	var others []models.LineItem
	for _, item := range entry.Deductions {
		if item.Kind == models.KindOtherDeduction {
			others = append(others, item)
		}
	}
	if len(others) > 0 {
		otras := deducciones.CreateElement("OtrasDeducciones")
		for _, item := range others {
			otra := otras.CreateElement("OtraDeduccion")
			text(otra, "Descripcion", item.Description)
			text(otra, "Valor", item.Amount.String())
		}
	}

	text(deducciones, "Total", entry.DeductionsTotal.String())
}

func text(parent *etree.Element, tag, value string) {
	parent.CreateElement(tag).SetText(value)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// percentageOrDefault emits the statutory 4% when the line item carries no
// explicit percentage, matching how closed periods are reported.
func percentageOrDefault(p decimal.Decimal) string {
	if p.IsZero() {
		return "4"
	}
	return p.String()
}
