package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"nomina/internal/payroll/models"
	"nomina/pkg/platform/sentinel"
)

// uniqueViolation is the PostgreSQL error code for unique constraint breaks.
const uniqueViolation = "23505"

// Postgres persists documents in the electronic_documents table. The payroll
// entry and employer snapshots are stored as JSONB so the compliance record
// stays self-contained.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const documentColumns = `
	id, document_number, generation_date, entry, employer,
	xml_unsigned, xml_signed, cufe, state,
	response_code, response_message, tracking_id,
	created_at, updated_at`

func (s *Postgres) Create(ctx context.Context, doc *models.ElectronicDocument) error {
	entry, employer, err := marshalSnapshots(doc)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO electronic_documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = s.db.ExecContext(ctx, query,
		doc.ID, doc.DocumentNumber, doc.GenerationDate, entry, employer,
		doc.XMLUnsigned, doc.XMLSigned, doc.CUFE, string(doc.State),
		doc.ResponseCode, doc.ResponseMessage, doc.TrackingID,
		doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id uuid.UUID) (*models.ElectronicDocument, error) {
	query := `SELECT ` + documentColumns + ` FROM electronic_documents WHERE id = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, id))
}

func (s *Postgres) FindByNumber(ctx context.Context, number string) (*models.ElectronicDocument, error) {
	query := `SELECT ` + documentColumns + ` FROM electronic_documents WHERE document_number = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, number))
}

func (s *Postgres) Update(ctx context.Context, doc *models.ElectronicDocument) error {
	query := `
		UPDATE electronic_documents SET
			xml_unsigned = $2, xml_signed = $3, cufe = $4, state = $5,
			response_code = $6, response_message = $7, tracking_id = $8,
			updated_at = $9
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		doc.ID, doc.XMLUnsigned, doc.XMLSigned, doc.CUFE, string(doc.State),
		doc.ResponseCode, doc.ResponseMessage, doc.TrackingID, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) ListByState(ctx context.Context, state models.DocumentState) ([]*models.ElectronicDocument, error) {
	query := `SELECT ` + documentColumns + `
		FROM electronic_documents WHERE state = $1 ORDER BY document_number`
	rows, err := s.db.QueryContext(ctx, query, string(state))
	if err != nil {
		return nil, fmt.Errorf("list documents by state: %w", err)
	}
	defer rows.Close()

	var out []*models.ElectronicDocument
	for rows.Next() {
		doc, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *Postgres) scanOne(row *sql.Row) (*models.ElectronicDocument, error) {
	doc, err := scanDocument(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return doc, err
}

func scanDocument(scan func(...any) error) (*models.ElectronicDocument, error) {
	var (
		doc             models.ElectronicDocument
		state           string
		entry, employer []byte
		genDate         time.Time
	)
	err := scan(
		&doc.ID, &doc.DocumentNumber, &genDate, &entry, &employer,
		&doc.XMLUnsigned, &doc.XMLSigned, &doc.CUFE, &state,
		&doc.ResponseCode, &doc.ResponseMessage, &doc.TrackingID,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.GenerationDate = genDate
	doc.State = models.DocumentState(state)
	if err := json.Unmarshal(entry, &doc.Entry); err != nil {
		return nil, fmt.Errorf("decode entry snapshot: %w", err)
	}
	if err := json.Unmarshal(employer, &doc.Employer); err != nil {
		return nil, fmt.Errorf("decode employer snapshot: %w", err)
	}
	return &doc, nil
}

func marshalSnapshots(doc *models.ElectronicDocument) (entry, employer []byte, err error) {
	entry, err = json.Marshal(doc.Entry)
	if err != nil {
		return nil, nil, fmt.Errorf("encode entry snapshot: %w", err)
	}
	employer, err = json.Marshal(doc.Employer)
	if err != nil {
		return nil, nil, fmt.Errorf("encode employer snapshot: %w", err)
	}
	return entry, employer, nil
}
