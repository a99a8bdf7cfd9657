package handler

import (
	"time"

	"nomina/internal/payroll/models"
	"nomina/internal/payroll/pipeline"
)

// DocumentResponse is the HTTP representation of a document. The XML
// artifacts are deliberately excluded; they are large and only the pipeline
// needs them.
type DocumentResponse struct {
	ID              string              `json:"id"`
	DocumentNumber  string              `json:"document_number"`
	GenerationDate  string              `json:"generation_date"`
	State           string              `json:"state"`
	ContentKey      string              `json:"content_key,omitempty"`
	ResponseCode    string              `json:"response_code,omitempty"`
	ResponseMessage string              `json:"response_message,omitempty"`
	TrackingID      string              `json:"tracking_id,omitempty"`
	Entry           models.PayrollEntry `json:"entry"`
	Employer        models.Employer     `json:"employer"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// FromDocument converts a domain document to its HTTP representation.
func FromDocument(doc *models.ElectronicDocument) *DocumentResponse {
	return &DocumentResponse{
		ID:              doc.ID.String(),
		DocumentNumber:  doc.DocumentNumber,
		GenerationDate:  doc.GenerationDate.Format(dateLayout),
		State:           string(doc.State),
		ContentKey:      doc.CUFE,
		ResponseCode:    doc.ResponseCode,
		ResponseMessage: doc.ResponseMessage,
		TrackingID:      doc.TrackingID,
		Entry:           doc.Entry,
		Employer:        doc.Employer,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
}

// DocumentListResponse is the HTTP response for GET /payroll/documents.
type DocumentListResponse struct {
	Documents []*DocumentResponse `json:"documents"`
}

// FromDocuments converts a document list.
func FromDocuments(docs []*models.ElectronicDocument) *DocumentListResponse {
	out := &DocumentListResponse{Documents: make([]*DocumentResponse, 0, len(docs))}
	for _, doc := range docs {
		out.Documents = append(out.Documents, FromDocument(doc))
	}
	return out
}

// BatchResponse is the HTTP response for POST /payroll/documents/process-drafts.
type BatchResponse struct {
	Processed int               `json:"processed"`
	Succeeded int               `json:"succeeded"`
	Results   []pipeline.Result `json:"results"`
}

// FromBatch summarizes a batch run.
func FromBatch(results []pipeline.Result) *BatchResponse {
	out := &BatchResponse{Processed: len(results), Results: results}
	for _, r := range results {
		if r.Success {
			out.Succeeded++
		}
	}
	return out
}
