package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nomina/internal/payroll/authority"
	"nomina/internal/payroll/models"
	"nomina/internal/payroll/pipeline"
	"nomina/internal/payroll/signer"
	dErrors "nomina/pkg/domain-errors"
)

type stubService struct {
	createFn  func(ctx context.Context, number string, date time.Time, entry models.PayrollEntry, employer models.Employer) (*models.ElectronicDocument, error)
	getFn     func(ctx context.Context, id uuid.UUID) (*models.ElectronicDocument, error)
	listFn    func(ctx context.Context, state models.DocumentState) ([]*models.ElectronicDocument, error)
	processFn func(ctx context.Context, id uuid.UUID) (pipeline.Result, error)
	refreshFn func(ctx context.Context, id uuid.UUID) (authority.StatusResult, error)
	batchFn   func(ctx context.Context, concurrency int) ([]pipeline.Result, error)
}

func (s *stubService) CreateDraft(ctx context.Context, number string, date time.Time, entry models.PayrollEntry, employer models.Employer) (*models.ElectronicDocument, error) {
	return s.createFn(ctx, number, date, entry, employer)
}

func (s *stubService) Document(ctx context.Context, id uuid.UUID) (*models.ElectronicDocument, error) {
	return s.getFn(ctx, id)
}

func (s *stubService) DocumentsByState(ctx context.Context, state models.DocumentState) ([]*models.ElectronicDocument, error) {
	return s.listFn(ctx, state)
}

func (s *stubService) ProcessAndSubmit(ctx context.Context, id uuid.UUID) (pipeline.Result, error) {
	return s.processFn(ctx, id)
}

func (s *stubService) RefreshStatus(ctx context.Context, id uuid.UUID) (authority.StatusResult, error) {
	return s.refreshFn(ctx, id)
}

func (s *stubService) ProcessDrafts(ctx context.Context, concurrency int) ([]pipeline.Result, error) {
	return s.batchFn(ctx, concurrency)
}

type stubCertificate struct {
	info signer.Info
	err  error
}

func (s *stubCertificate) Info(_ time.Time) (signer.Info, error) {
	return s.info, s.err
}

func newRouter(service Service, certificate Certificate) chi.Router {
	h := New(service, certificate, testLogger())
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

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
		},
		PeriodStart: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
		WorkedDays:  30,
		Accruals: []models.LineItem{
			{Kind: models.KindBasic, Description: "Sueldo básico", Amount: decimal.NewFromInt(2000000)},
		},
		GrossTotal:      decimal.NewFromInt(2000000),
		DeductionsTotal: decimal.Zero,
		NetTotal:        decimal.NewFromInt(2000000),
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
		time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), entry, employer, time.Now())
	require.NoError(t, err)
	return doc
}

func TestHandleCreateDocument(t *testing.T) {
	t.Run("creates a draft", func(t *testing.T) {
		doc := testDocument(t)
		service := &stubService{
			createFn: func(_ context.Context, number string, date time.Time, entry models.PayrollEntry, employer models.Employer) (*models.ElectronicDocument, error) {
				assert.Equal(t, "NE-0001", number)
				assert.Equal(t, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), date)
				assert.Equal(t, "900123456", employer.TaxID)
				return doc, nil
			},
		}
		router := newRouter(service, &stubCertificate{})

		body, err := json.Marshal(map[string]any{
			"document_number": "NE-0001",
			"generation_date": "2025-01-31",
			"entry":           doc.Entry,
			"employer":        doc.Employer,
		})
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payroll/documents", bytes.NewReader(body)))

		require.Equal(t, http.StatusCreated, rec.Code)
		var resp DocumentResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "NE-0001", resp.DocumentNumber)
		assert.Equal(t, string(models.StateDraft), resp.State)
		assert.Equal(t, "2025-01-31", resp.GenerationDate)
	})

	t.Run("rejects malformed generation date", func(t *testing.T) {
		router := newRouter(&stubService{}, &stubCertificate{})

		body := []byte(`{"document_number":"NE-0001","generation_date":"31/01/2025"}`)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payroll/documents", bytes.NewReader(body)))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects missing document number", func(t *testing.T) {
		router := newRouter(&stubService{}, &stubCertificate{})

		body := []byte(`{"generation_date":"2025-01-31"}`)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payroll/documents", bytes.NewReader(body)))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("duplicate number maps to conflict", func(t *testing.T) {
		doc := testDocument(t)
		service := &stubService{
			createFn: func(context.Context, string, time.Time, models.PayrollEntry, models.Employer) (*models.ElectronicDocument, error) {
				return nil, dErrors.New(dErrors.CodeConflict, "document NE-0001 already exists")
			},
		}
		router := newRouter(service, &stubCertificate{})

		body, err := json.Marshal(map[string]any{
			"document_number": "NE-0001",
			"generation_date": "2025-01-31",
			"entry":           doc.Entry,
			"employer":        doc.Employer,
		})
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payroll/documents", bytes.NewReader(body)))

		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestHandleGetDocument(t *testing.T) {
	t.Run("returns the document", func(t *testing.T) {
		doc := testDocument(t)
		service := &stubService{
			getFn: func(_ context.Context, id uuid.UUID) (*models.ElectronicDocument, error) {
				assert.Equal(t, doc.ID, id)
				return doc, nil
			},
		}
		router := newRouter(service, &stubCertificate{})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payroll/documents/"+doc.ID.String(), nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp DocumentResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, doc.ID.String(), resp.ID)
	})

	t.Run("unknown id is 404", func(t *testing.T) {
		service := &stubService{
			getFn: func(context.Context, uuid.UUID) (*models.ElectronicDocument, error) {
				return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
			},
		}
		router := newRouter(service, &stubCertificate{})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payroll/documents/"+uuid.NewString(), nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed id is 400", func(t *testing.T) {
		router := newRouter(&stubService{}, &stubCertificate{})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payroll/documents/not-a-uuid", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleListDocuments(t *testing.T) {
	t.Run("lists by state", func(t *testing.T) {
		doc := testDocument(t)
		service := &stubService{
			listFn: func(_ context.Context, state models.DocumentState) ([]*models.ElectronicDocument, error) {
				assert.Equal(t, models.StateDraft, state)
				return []*models.ElectronicDocument{doc}, nil
			},
		}
		router := newRouter(service, &stubCertificate{})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payroll/documents?state=DRAFT", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp DocumentListResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		require.Len(t, resp.Documents, 1)
		assert.Equal(t, "NE-0001", resp.Documents[0].DocumentNumber)
	})

	t.Run("missing state parameter", func(t *testing.T) {
		router := newRouter(&stubService{}, &stubCertificate{})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payroll/documents", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleProcess(t *testing.T) {
	t.Run("returns step results", func(t *testing.T) {
		documentID := uuid.New()
		service := &stubService{
			processFn: func(_ context.Context, id uuid.UUID) (pipeline.Result, error) {
				assert.Equal(t, documentID, id)
				return pipeline.Result{
					DocumentID: id,
					Success:    true,
					Steps: []pipeline.StepResult{
						{Stage: pipeline.StageBuild, Success: true},
						{Stage: pipeline.StageSign, Success: true},
						{Stage: pipeline.StageSubmit, Success: true, TrackingID: "track-1"},
					},
				}, nil
			},
		}
		router := newRouter(service, &stubCertificate{})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
			fmt.Sprintf("/payroll/documents/%s/process", documentID), nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp pipeline.Result
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.True(t, resp.Success)
		assert.Len(t, resp.Steps, 3)
	})

	t.Run("concurrent run maps to conflict", func(t *testing.T) {
		service := &stubService{
			processFn: func(context.Context, uuid.UUID) (pipeline.Result, error) {
				return pipeline.Result{}, dErrors.New(dErrors.CodeConflict, "document is already being processed")
			},
		}
		router := newRouter(service, &stubCertificate{})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
			fmt.Sprintf("/payroll/documents/%s/process", uuid.New()), nil))

		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestHandleRefreshStatus(t *testing.T) {
	documentID := uuid.New()
	service := &stubService{
		refreshFn: func(_ context.Context, id uuid.UUID) (authority.StatusResult, error) {
			assert.Equal(t, documentID, id)
			return authority.StatusResult{Status: "Procesado", StatusCode: "00"}, nil
		},
	}
	router := newRouter(service, &stubCertificate{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
		fmt.Sprintf("/payroll/documents/%s/refresh-status", documentID), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp authority.StatusResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "00", resp.StatusCode)
}

func TestHandleProcessDrafts(t *testing.T) {
	t.Run("defaults concurrency", func(t *testing.T) {
		service := &stubService{
			batchFn: func(_ context.Context, concurrency int) ([]pipeline.Result, error) {
				assert.Equal(t, defaultBatchConcurrency, concurrency)
				return []pipeline.Result{
					{DocumentID: uuid.New(), Success: true},
					{DocumentID: uuid.New(), Success: false},
				}, nil
			},
		}
		router := newRouter(service, &stubCertificate{})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
			"/payroll/documents/process-drafts", bytes.NewReader([]byte(`{}`))))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp BatchResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, 2, resp.Processed)
		assert.Equal(t, 1, resp.Succeeded)
	})

	t.Run("rejects excessive concurrency", func(t *testing.T) {
		router := newRouter(&stubService{}, &stubCertificate{})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
			"/payroll/documents/process-drafts", bytes.NewReader([]byte(`{"concurrency":64}`))))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleCertificateInfo(t *testing.T) {
	t.Run("returns certificate metadata", func(t *testing.T) {
		certificate := &stubCertificate{info: signer.Info{
			Subject:   "CN=Óptica Central SAS",
			NotAfter:  time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
			NotBefore: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		}}
		router := newRouter(&stubService{}, certificate)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payroll/certificate", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp signer.Info
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "CN=Óptica Central SAS", resp.Subject)
	})

	t.Run("unreadable bundle maps to unprocessable", func(t *testing.T) {
		certificate := &stubCertificate{err: dErrors.New(dErrors.CodeCertificate, "decrypt certificate bundle")}
		router := newRouter(&stubService{}, certificate)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payroll/certificate", nil))

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}
