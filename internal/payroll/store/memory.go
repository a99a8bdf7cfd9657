package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"nomina/internal/payroll/models"
	"nomina/pkg/platform/sentinel"
)

// InMemory implements DocumentStore with a map. Used by tests and
// single-process setups; values are copied on the way in and out so callers
// cannot mutate stored state behind the store's back.
type InMemory struct {
	mu       sync.RWMutex
	byID     map[uuid.UUID]*models.ElectronicDocument
	byNumber map[string]uuid.UUID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:     make(map[uuid.UUID]*models.ElectronicDocument),
		byNumber: make(map[string]uuid.UUID),
	}
}

func (s *InMemory) Create(ctx context.Context, doc *models.ElectronicDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[doc.ID]; exists {
		return sentinel.ErrConflict
	}
	if _, exists := s.byNumber[doc.DocumentNumber]; exists {
		return sentinel.ErrConflict
	}
	s.byID[doc.ID] = clone(doc)
	s.byNumber[doc.DocumentNumber] = doc.ID
	return nil
}

func (s *InMemory) FindByID(ctx context.Context, id uuid.UUID) (*models.ElectronicDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(doc), nil
}

func (s *InMemory) FindByNumber(ctx context.Context, number string) (*models.ElectronicDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byNumber[number]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(s.byID[id]), nil
}

func (s *InMemory) Update(ctx context.Context, doc *models.ElectronicDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[doc.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.byID[doc.ID] = clone(doc)
	return nil
}

func (s *InMemory) ListByState(ctx context.Context, state models.DocumentState) ([]*models.ElectronicDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.ElectronicDocument
	for _, doc := range s.byID {
		if doc.State == state {
			out = append(out, clone(doc))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DocumentNumber < out[j].DocumentNumber
	})
	return out, nil
}

func clone(doc *models.ElectronicDocument) *models.ElectronicDocument {
	cp := *doc
	cp.Entry.Accruals = append([]models.LineItem(nil), doc.Entry.Accruals...)
	cp.Entry.Deductions = append([]models.LineItem(nil), doc.Entry.Deductions...)
	return &cp
}
