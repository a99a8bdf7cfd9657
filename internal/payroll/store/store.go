// Package store persists electronic payroll documents. Stores are
// interface-driven so the pipeline and handlers can run against in-memory
// persistence in tests and PostgreSQL in production without rewiring.
package store

import (
	"context"

	"github.com/google/uuid"

	"nomina/internal/payroll/models"
)

// DocumentStore persists the ElectronicDocument aggregate. Documents are
// compliance records: they are created, updated one pipeline stage at a
// time, and never deleted.
//
// Implementations return sentinel.ErrNotFound for missing documents and
// sentinel.ErrConflict for duplicate document numbers.
type DocumentStore interface {
	Create(ctx context.Context, doc *models.ElectronicDocument) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ElectronicDocument, error)
	FindByNumber(ctx context.Context, number string) (*models.ElectronicDocument, error)
	Update(ctx context.Context, doc *models.ElectronicDocument) error
	ListByState(ctx context.Context, state models.DocumentState) ([]*models.ElectronicDocument, error)
}
