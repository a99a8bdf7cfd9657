// Package handler exposes the payroll compliance pipeline over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"nomina/internal/payroll/authority"
	"nomina/internal/payroll/models"
	"nomina/internal/payroll/pipeline"
	"nomina/internal/payroll/signer"
	dErrors "nomina/pkg/domain-errors"
	"nomina/pkg/platform/httputil"
	"nomina/pkg/requestcontext"
)

// defaultBatchConcurrency bounds parallel pipeline runs when the request
// does not ask for a specific limit.
const defaultBatchConcurrency = 4

// Service defines the document and pipeline operations the handler needs.
type Service interface {
	CreateDraft(ctx context.Context, number string, generationDate time.Time, entry models.PayrollEntry, employer models.Employer) (*models.ElectronicDocument, error)
	Document(ctx context.Context, documentID uuid.UUID) (*models.ElectronicDocument, error)
	DocumentsByState(ctx context.Context, state models.DocumentState) ([]*models.ElectronicDocument, error)
	ProcessAndSubmit(ctx context.Context, documentID uuid.UUID) (pipeline.Result, error)
	RefreshStatus(ctx context.Context, documentID uuid.UUID) (authority.StatusResult, error)
	ProcessDrafts(ctx context.Context, concurrency int) ([]pipeline.Result, error)
}

// Certificate reports metadata about the signing certificate.
type Certificate interface {
	Info(now time.Time) (signer.Info, error)
}

// Handler wires payroll endpoints to the pipeline service.
type Handler struct {
	service     Service
	certificate Certificate
	logger      *slog.Logger
}

// New constructs a payroll handler with its dependencies.
func New(service Service, certificate Certificate, logger *slog.Logger) *Handler {
	return &Handler{
		service:     service,
		certificate: certificate,
		logger:      logger,
	}
}

// Register mounts payroll endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/payroll", func(r chi.Router) {
		r.Post("/documents", h.HandleCreateDocument)
		r.Get("/documents", h.HandleListDocuments)
		r.Get("/documents/{documentID}", h.HandleGetDocument)
		r.Post("/documents/{documentID}/process", h.HandleProcess)
		r.Post("/documents/{documentID}/refresh-status", h.HandleRefreshStatus)
		r.Post("/documents/process-drafts", h.HandleProcessDrafts)
		r.Get("/certificate", h.HandleCertificateInfo)
	})
}

// HandleCreateDocument handles POST /payroll/documents requests.
func (h *Handler) HandleCreateDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.Decode[CreateDocumentRequest](w, r)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	doc, err := h.service.CreateDraft(ctx, req.DocumentNumber, req.ParsedGenerationDate(), req.Entry, req.Employer)
	if err != nil {
		h.logger.ErrorContext(ctx, "create document failed",
			"request_id", requestID,
			"document_number", req.DocumentNumber,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "document created",
		"request_id", requestID,
		"document_number", doc.DocumentNumber,
		"document_id", doc.ID,
	)
	httputil.WriteJSON(w, http.StatusCreated, FromDocument(doc))
}

// HandleGetDocument handles GET /payroll/documents/{documentID} requests.
func (h *Handler) HandleGetDocument(w http.ResponseWriter, r *http.Request) {
	documentID, ok := h.documentID(w, r)
	if !ok {
		return
	}

	doc, err := h.service.Document(r.Context(), documentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromDocument(doc))
}

// HandleListDocuments handles GET /payroll/documents?state=... requests.
func (h *Handler) HandleListDocuments(w http.ResponseWriter, r *http.Request) {
	state := models.DocumentState(r.URL.Query().Get("state"))
	if state == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "state query parameter is required"))
		return
	}

	docs, err := h.service.DocumentsByState(r.Context(), state)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromDocuments(docs))
}

// HandleProcess handles POST /payroll/documents/{documentID}/process requests.
func (h *Handler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	documentID, ok := h.documentID(w, r)
	if !ok {
		return
	}

	result, err := h.service.ProcessAndSubmit(ctx, documentID)
	if err != nil {
		h.logger.ErrorContext(ctx, "pipeline run failed to start",
			"request_id", requestID,
			"document_id", documentID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "pipeline run finished",
		"request_id", requestID,
		"document_id", documentID,
		"success", result.Success,
		"steps", len(result.Steps),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleRefreshStatus handles POST /payroll/documents/{documentID}/refresh-status requests.
func (h *Handler) HandleRefreshStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	documentID, ok := h.documentID(w, r)
	if !ok {
		return
	}

	status, err := h.service.RefreshStatus(ctx, documentID)
	if err != nil {
		h.logger.ErrorContext(ctx, "status refresh failed",
			"request_id", requestcontext.RequestID(ctx),
			"document_id", documentID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

// HandleProcessDrafts handles POST /payroll/documents/process-drafts requests.
func (h *Handler) HandleProcessDrafts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.Decode[ProcessDraftsRequest](w, r)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	concurrency := req.Concurrency
	if concurrency == 0 {
		concurrency = defaultBatchConcurrency
	}

	results, err := h.service.ProcessDrafts(ctx, concurrency)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	response := FromBatch(results)
	h.logger.InfoContext(ctx, "draft batch finished",
		"request_id", requestID,
		"processed", response.Processed,
		"succeeded", response.Succeeded,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, response)
}

// HandleCertificateInfo handles GET /payroll/certificate requests.
func (h *Handler) HandleCertificateInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.certificate.Info(requestcontext.Now(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, info)
}

func (h *Handler) documentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "documentID")
	documentID, err := uuid.Parse(raw)
	if err != nil {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeValidation, "invalid document id %q", raw))
		return uuid.UUID{}, false
	}
	return documentID, true
}
