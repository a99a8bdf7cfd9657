package xmlgen

import (
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nomina/internal/payroll/models"
	dErrors "nomina/pkg/domain-errors"
)

func testDocument(t *testing.T) *models.ElectronicDocument {
	t.Helper()
	entry := models.PayrollEntry{
		Employee: models.Employee{
			DocumentType:   "CC",
			DocumentNumber: "1020304050",
			FirstSurname:   "García",
			FirstName:      "Laura",
			WorkerType:     "01",
			WorkerSubType:  "00",
			Country:        "CO",
			State:          "11",
			City:           "11001",
			Address:        "Calle 1 # 2-3",
			ContractType:   models.ContractIndefinite,
			BaseSalary:     decimal.NewFromInt(2000000),
			HireDate:       time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC),
			PaymentMethod:  "47",
			BankAccount: models.BankAccount{
				Bank:          "Bancolombia",
				AccountType:   "AHORROS",
				AccountNumber: "1234567890",
			},
		},
		PeriodStart: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
		WorkedDays:  30,
		Accruals: []models.LineItem{
			{Kind: models.KindBasic, Description: "Sueldo básico", Amount: decimal.NewFromInt(2000000)},
			{Kind: models.KindOvertime, Description: "Horas extras diurnas", Amount: decimal.NewFromInt(50000)},
		},
		Deductions: []models.LineItem{
			{Kind: models.KindHealth, Description: "Salud", Amount: decimal.NewFromInt(80000), Percentage: decimal.NewFromInt(4)},
			{Kind: models.KindPension, Description: "Pensión", Amount: decimal.NewFromInt(80000), Percentage: decimal.NewFromInt(4)},
		},
		GrossTotal:      decimal.NewFromInt(2050000),
		DeductionsTotal: decimal.NewFromInt(160000),
		NetTotal:        decimal.NewFromInt(1890000),
	}
	employer := models.Employer{
		TaxID:        "900123456",
		CheckDigit:   "7",
		BusinessName: "Óptica Central SAS",
		Country:      "CO",
		State:        "11",
		City:         "11001",
		Address:      "Carrera 10 # 20-30",
	}
	doc, err := models.NewDocument(uuid.New(), "NE-0001",
		time.Date(2025, 1, 15, 8, 30, 0, 0, time.FixedZone("-05", -5*3600)),
		entry, employer, time.Now())
	require.NoError(t, err)
	return doc
}

func TestBuildIsIdempotent(t *testing.T) {
	builder := New(false)
	doc := testDocument(t)

	first, err := builder.Build(doc)
	require.NoError(t, err)
	second, err := builder.Build(doc)
	require.NoError(t, err)

	assert.Equal(t, first, second, "same inputs must produce byte-identical XML")
}

func TestBuildSectionOrder(t *testing.T) {
	builder := New(false)
	out, err := builder.Build(testDocument(t))
	require.NoError(t, err)

	tree := etree.NewDocument()
	require.NoError(t, tree.ReadFromString(out))
	root := tree.Root()
	require.Equal(t, "NominaIndividual", root.Tag)

	var order []string
	for _, child := range root.ChildElements() {
		order = append(order, child.Tag)
	}
	assert.Equal(t, []string{
		"InformacionGeneral", "Empleador", "Trabajador", "Pago", "Devengados", "Deducciones",
	}, order)
}

func TestBuildNumbersArePlainDecimals(t *testing.T) {
	builder := New(false)
	out, err := builder.Build(testDocument(t))
	require.NoError(t, err)

	tree := etree.NewDocument()
	require.NoError(t, tree.ReadFromString(out))

	total := tree.FindElement("//Devengados/Total")
	require.NotNil(t, total)
	assert.Equal(t, "2050000", total.Text())

	sueldo := tree.FindElement("//Trabajador/Sueldo")
	require.NotNil(t, sueldo)
	assert.Equal(t, "2000000", sueldo.Text())
	assert.NotContains(t, out, "$")
	assert.NotContains(t, out, "2,050,000")
}

func TestBuildOmitsAbsentOptionalBlocks(t *testing.T) {
	builder := New(false)

	t.Run("no bank details", func(t *testing.T) {
		doc := testDocument(t)
		doc.Entry.Employee.BankAccount = models.BankAccount{}
		out, err := builder.Build(doc)
		require.NoError(t, err)
		assert.NotContains(t, out, "<Banco")
		assert.NotContains(t, out, "<NumeroCuenta")
	})

	t.Run("no deductions drops the whole block", func(t *testing.T) {
		doc := testDocument(t)
		doc.Entry.Deductions = nil
		out, err := builder.Build(doc)
		require.NoError(t, err)
		assert.NotContains(t, out, "<Deducciones")
	})

	t.Run("no second surname", func(t *testing.T) {
		doc := testDocument(t)
		doc.Entry.Employee.SecondSurname = ""
		out, err := builder.Build(doc)
		require.NoError(t, err)
		assert.NotContains(t, out, "SegundoApellido")
	})
}

func TestBuildAccrualsPrecedeDeductions(t *testing.T) {
	builder := New(false)
	out, err := builder.Build(testDocument(t))
	require.NoError(t, err)

	assert.Less(t, strings.Index(out, "<Devengados>"), strings.Index(out, "<Deducciones>"))
}

func TestBuildMapsConceptKinds(t *testing.T) {
	builder := New(false)

	doc := testDocument(t)
	doc.Entry.Accruals = append(doc.Entry.Accruals,
		models.LineItem{Kind: models.KindCommission, Description: "Comisión ventas", Amount: decimal.NewFromInt(30000)},
		models.LineItem{Kind: models.KindTransportAid, Description: "Auxilio de transporte", Amount: decimal.NewFromInt(140606)},
	)
	out, err := builder.Build(doc)
	require.NoError(t, err)

	assert.Contains(t, out, "<HoraExtra>")
	assert.Contains(t, out, "<Comisiones>")
	assert.Contains(t, out, "<Auxilio>")
}

func TestBuildRejectsMissingIdentity(t *testing.T) {
	builder := New(false)

	t.Run("missing employer tax id", func(t *testing.T) {
		doc := testDocument(t)
		doc.Employer.TaxID = ""
		out, err := builder.Build(doc)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		assert.Empty(t, out, "generation is all-or-nothing")
	})

	t.Run("missing document number", func(t *testing.T) {
		doc := testDocument(t)
		doc.DocumentNumber = ""
		_, err := builder.Build(doc)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestBuildAmbienteFlag(t *testing.T) {
	doc := testDocument(t)

	testOut, err := New(false).Build(doc)
	require.NoError(t, err)
	assert.Contains(t, testOut, "<Ambiente>2</Ambiente>")

	prodOut, err := New(true).Build(doc)
	require.NoError(t, err)
	assert.Contains(t, prodOut, "<Ambiente>1</Ambiente>")
}
