// Package pipeline orchestrates the compliance workflow for one electronic
// payroll document: build XML, compute the content key, sign, submit, and
// persist progress after every stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"nomina/internal/payroll/audit"
	"nomina/internal/payroll/authority"
	"nomina/internal/payroll/cufe"
	"nomina/internal/payroll/lock"
	"nomina/internal/payroll/metrics"
	"nomina/internal/payroll/models"
	"nomina/internal/payroll/store"
	dErrors "nomina/pkg/domain-errors"
	"nomina/pkg/platform/sentinel"
)

// Stage names as they appear in step results and metrics. The build stage
// covers both XML generation and the content key: they share inputs and an
// operator retries them as one unit.
const (
	StageBuild  = "build"
	StageSign   = "sign"
	StageSubmit = "submit"
)

// Builder produces unsigned XML for a document.
type Builder interface {
	Build(doc *models.ElectronicDocument) (string, error)
}

// Signer embeds and checks XML signatures.
type Signer interface {
	Sign(xmlUnsigned string) (string, error)
	Verify(xmlSigned string) bool
}

// Submitter talks to the authority.
type Submitter interface {
	Submit(ctx context.Context, signedXML, contentKey string) (authority.Receipt, error)
	QueryStatus(ctx context.Context, trackingID string) (authority.StatusResult, error)
}

// StepResult records how one stage went; the slice of steps is the
// operator's audit trail of how far a document progressed.
type StepResult struct {
	Stage      string `json:"stage"`
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	TrackingID string `json:"tracking_id,omitempty"`
}

// Result is the outcome of one pipeline run.
type Result struct {
	DocumentID uuid.UUID    `json:"document_id"`
	Steps      []StepResult `json:"steps"`
	Success    bool         `json:"success"`
}

// Service runs the pipeline. One service instance serves one organization
// certificate and endpoint; independent documents may be processed on
// independent goroutines, but a single document is guarded by a per-document
// lock for the whole run.
type Service struct {
	documents store.DocumentStore
	builder   Builder
	signer    Signer
	authority Submitter

	locks   lock.Locker
	trail   audit.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithLocker(l lock.Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locks = l
		}
	}
}

func WithAuditTrail(p audit.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.trail = p
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock injects the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New wires the pipeline. All four collaborators are required; locker, audit
// trail and metrics default to in-process implementations.
func New(documents store.DocumentStore, builder Builder, signer Signer, submitter Submitter, opts ...Option) (*Service, error) {
	if documents == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if builder == nil {
		return nil, fmt.Errorf("builder is required")
	}
	if signer == nil {
		return nil, fmt.Errorf("signer is required")
	}
	if submitter == nil {
		return nil, fmt.Errorf("submitter is required")
	}

	s := &Service{
		documents: documents,
		builder:   builder,
		signer:    signer,
		authority: submitter,
		locks:     lock.NewInMemory(),
		trail:     audit.NewRecorder(),
		logger:    slog.Default(),
		tracer:    otel.Tracer("nomina/internal/payroll/pipeline"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateDraft validates and persists a new DRAFT document. The entry and
// employer snapshots are frozen at creation time so later master-data edits
// never change what gets signed.
func (s *Service) CreateDraft(ctx context.Context, number string, generationDate time.Time, entry models.PayrollEntry, employer models.Employer) (*models.ElectronicDocument, error) {
	doc, err := models.NewDocument(uuid.New(), number, generationDate, entry, employer, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Newf(dErrors.CodeConflict, "document %s already exists", number)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist draft document")
	}
	s.emit(ctx, doc, audit.ActionDocumentCreated, "")
	return doc, nil
}

// Document looks up one document by ID.
func (s *Service) Document(ctx context.Context, documentID uuid.UUID) (*models.ElectronicDocument, error) {
	doc, err := s.documents.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load document")
	}
	return doc, nil
}

// DocumentsByState lists documents in a lifecycle state, ordered by number.
func (s *Service) DocumentsByState(ctx context.Context, state models.DocumentState) ([]*models.ElectronicDocument, error) {
	if !state.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown document state %q", state)
	}
	docs, err := s.documents.ListByState(ctx, state)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list documents")
	}
	return docs, nil
}

// ProcessAndSubmit runs the remaining stages for a document, halting at the
// first failure. The document is left at the last successfully completed
// state; later stages are never attempted after a failure. Stage failures
// are reported in the step list, not as an error: the returned error covers
// only infrastructure problems (unknown document, lock contention).
func (s *Service) ProcessAndSubmit(ctx context.Context, documentID uuid.UUID) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "pipeline.process_and_submit")
	defer span.End()

	release, err := s.locks.Acquire(ctx, documentID.String())
	if err != nil {
		if errors.Is(err, sentinel.ErrLocked) {
			return Result{}, dErrors.Wrap(err, dErrors.CodeConflict,
				"document is already being processed")
		}
		return Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "acquire document lock")
	}
	defer release()

	doc, err := s.documents.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Result{}, dErrors.New(dErrors.CodeNotFound, "document not found")
		}
		return Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "load document")
	}
	if doc.State.IsTerminal() {
		return Result{}, dErrors.Newf(dErrors.CodeInvariantViolation,
			"document %s is already %s", doc.DocumentNumber, doc.State)
	}
	if doc.State == models.StateSubmitted {
		return Result{}, dErrors.Newf(dErrors.CodeInvariantViolation,
			"document %s is awaiting authority validation; refresh its status instead", doc.DocumentNumber)
	}

	result := Result{DocumentID: doc.ID}

	// The pipeline is resumable: stages already completed in a previous run
	// are skipped, never redone, so the signed artifact and the content key
	// of a partially processed document are preserved.
	if doc.State == models.StateDraft {
		if !s.runStage(ctx, &result, doc, StageBuild, s.buildStage) {
			return s.finish(result), nil
		}
	}
	if doc.State == models.StateXMLGenerated {
		if !s.runStage(ctx, &result, doc, StageSign, s.signStage) {
			return s.finish(result), nil
		}
	}
	s.runStage(ctx, &result, doc, StageSubmit, s.submitStage)
	return s.finish(result), nil
}

func (s *Service) finish(result Result) Result {
	result.Success = true
	for _, step := range result.Steps {
		if !step.Success {
			result.Success = false
			break
		}
	}
	if s.metrics != nil {
		s.metrics.ObserveRun(result.Success)
	}
	return result
}

// stageFunc advances doc by one lifecycle stage. It returns the step message
// (and tracking id, for submission) on success.
type stageFunc func(ctx context.Context, doc *models.ElectronicDocument) (StepResult, error)

func (s *Service) runStage(ctx context.Context, result *Result, doc *models.ElectronicDocument, stage string, fn stageFunc) bool {
	ctx, span := s.tracer.Start(ctx, "pipeline."+stage)
	defer span.End()

	step, err := fn(ctx, doc)
	step.Stage = stage
	if err != nil {
		step.Success = false
		step.Message = err.Error()
		s.logger.Error("pipeline stage failed",
			"stage", stage, "document", doc.DocumentNumber, "error", err)
	}
	result.Steps = append(result.Steps, step)
	if s.metrics != nil {
		s.metrics.ObserveStage(stage, step.Success)
	}
	return step.Success
}

func (s *Service) buildStage(ctx context.Context, doc *models.ElectronicDocument) (StepResult, error) {
	xml, err := s.builder.Build(doc)
	if err != nil {
		return StepResult{}, err
	}

	// The content key is computed exactly once; a resumed run never
	// recomputes it, preserving tamper evidence for what was issued.
	if doc.CUFE == "" {
		key, err := cufe.Compute(cufe.Inputs{
			DocumentNumber:  doc.DocumentNumber,
			GenerationDate:  doc.GenerationDate,
			EmployerTaxID:   doc.Employer.TaxID,
			SubjectTaxID:    doc.Entry.Employee.DocumentNumber,
			GrossTotal:      doc.Entry.GrossTotal,
			DeductionsTotal: doc.Entry.DeductionsTotal,
			NetTotal:        doc.Entry.NetTotal,
		})
		if err != nil {
			return StepResult{}, err
		}
		doc.CUFE = key
	}

	doc.XMLUnsigned = xml
	if err := s.advance(ctx, doc, models.StateXMLGenerated, audit.ActionXMLGenerated, ""); err != nil {
		return StepResult{}, err
	}
	return StepResult{Success: true, Message: "XML generated, content key " + doc.CUFE}, nil
}

func (s *Service) signStage(ctx context.Context, doc *models.ElectronicDocument) (StepResult, error) {
	signed, err := s.signer.Sign(doc.XMLUnsigned)
	if err != nil {
		return StepResult{}, err
	}

	doc.XMLSigned = signed
	if err := s.advance(ctx, doc, models.StateSigned, audit.ActionSigned, ""); err != nil {
		return StepResult{}, err
	}
	return StepResult{Success: true, Message: "document signed"}, nil
}

func (s *Service) submitStage(ctx context.Context, doc *models.ElectronicDocument) (StepResult, error) {
	started := s.now()
	receipt, err := s.authority.Submit(ctx, doc.XMLSigned, doc.CUFE)
	if s.metrics != nil {
		s.metrics.AuthorityDuration.Observe(s.now().Sub(started).Seconds())
	}
	if err != nil {
		// Transport failure: the signed artifact is retained and the
		// document parks in ERROR with the failure recorded for operators.
		doc.ResponseMessage = err.Error()
		if stateErr := s.advance(ctx, doc, models.StateError, audit.ActionErrored, err.Error()); stateErr != nil {
			return StepResult{}, stateErr
		}
		return StepResult{}, err
	}

	doc.ResponseCode = receipt.StatusCode
	doc.ResponseMessage = receipt.StatusMessage
	doc.TrackingID = receipt.TrackingID

	if err := s.advance(ctx, doc, models.StateSubmitted, audit.ActionSubmitted, receipt.StatusCode); err != nil {
		return StepResult{}, err
	}

	if receipt.Success {
		if err := s.advance(ctx, doc, models.StateValidated, audit.ActionValidated, receipt.StatusMessage); err != nil {
			return StepResult{}, err
		}
		return StepResult{Success: true, Message: receipt.StatusMessage, TrackingID: receipt.TrackingID}, nil
	}

	if err := s.advance(ctx, doc, models.StateRejected, audit.ActionRejected, receipt.StatusMessage); err != nil {
		return StepResult{}, err
	}
	return StepResult{
		Success:    false,
		Message:    fmt.Sprintf("authority rejected document (code %s): %s", receipt.StatusCode, receipt.StatusMessage),
		TrackingID: receipt.TrackingID,
	}, nil
}

// advance transitions, persists, and emits the audit event for one stage.
func (s *Service) advance(ctx context.Context, doc *models.ElectronicDocument, next models.DocumentState, action audit.Action, detail string) error {
	if err := doc.Transition(next, s.now()); err != nil {
		return err
	}
	if err := s.documents.Update(ctx, doc); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "persist document state")
	}
	s.emit(ctx, doc, action, detail)
	return nil
}

func (s *Service) emit(ctx context.Context, doc *models.ElectronicDocument, action audit.Action, detail string) {
	event := audit.Event{
		ID:             uuid.New(),
		DocumentID:     doc.ID,
		DocumentNumber: doc.DocumentNumber,
		Action:         action,
		Detail:         detail,
		At:             s.now(),
	}
	if err := s.trail.Emit(ctx, event); err != nil {
		s.logger.Warn("audit emit failed", "action", action, "document", doc.DocumentNumber, "error", err)
	}
}

// RefreshStatus polls the authority for a submitted document and decides
// whether the local record should change; the query itself never mutates
// state. Only a document still in SUBMITTED is moved; terminal records keep
// their state, with the latest authority message recorded for operators.
func (s *Service) RefreshStatus(ctx context.Context, documentID uuid.UUID) (authority.StatusResult, error) {
	doc, err := s.documents.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return authority.StatusResult{}, dErrors.New(dErrors.CodeNotFound, "document not found")
		}
		return authority.StatusResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "load document")
	}
	if doc.TrackingID == "" {
		return authority.StatusResult{}, dErrors.New(dErrors.CodeValidation, "document has no tracking id")
	}

	status, err := s.authority.QueryStatus(ctx, doc.TrackingID)
	if err != nil {
		return authority.StatusResult{}, err
	}

	doc.ResponseCode = status.StatusCode
	doc.ResponseMessage = status.StatusMessage

	if doc.State == models.StateSubmitted {
		switch status.StatusCode {
		case "00":
			if err := s.advance(ctx, doc, models.StateValidated, audit.ActionValidated, status.StatusMessage); err != nil {
				return status, err
			}
			return status, nil
		case "66":
			// Still pending: record the message without moving state.
		default:
			if err := s.advance(ctx, doc, models.StateRejected, audit.ActionRejected, status.StatusMessage); err != nil {
				return status, err
			}
			return status, nil
		}
	}

	doc.UpdatedAt = s.now()
	if err := s.documents.Update(ctx, doc); err != nil {
		return status, dErrors.Wrap(err, dErrors.CodeInternal, "persist refreshed status")
	}
	s.emit(ctx, doc, audit.ActionStatusRefreshed, status.StatusCode)
	return status, nil
}

// ProcessDrafts runs the pipeline over every DRAFT document with bounded
// concurrency. One document's failure never stops the batch; each document
// reports its own step list.
func (s *Service) ProcessDrafts(ctx context.Context, concurrency int) ([]Result, error) {
	if concurrency <= 0 {
		concurrency = 1
	}

	drafts, err := s.documents.ListByState(ctx, models.StateDraft)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list draft documents")
	}

	var (
		mu      sync.Mutex
		results []Result
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, draft := range drafts {
		g.Go(func() error {
			result, err := s.ProcessAndSubmit(ctx, draft.ID)
			if err != nil {
				s.logger.Error("batch document failed before pipeline",
					"document", draft.DocumentNumber, "error", err)
				result = Result{
					DocumentID: draft.ID,
					Steps:      []StepResult{{Stage: StageBuild, Success: false, Message: err.Error()}},
				}
			}
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
