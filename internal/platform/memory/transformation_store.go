// Package memory provides mutex-guarded in-memory implementations of the
// store interfaces. They back the test suite and the no-database dev mode,
// and enforce the same guarded-transition semantics as the postgres
// implementations.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/artivo/restyle-api/internal/domain"
	"github.com/artivo/restyle-api/internal/store"
)

// TransformationStore is an in-memory implementation of
// store.TransformationStore.
type TransformationStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*domain.Transformation
}

// NewTransformationStore creates an empty in-memory transformation store.
func NewTransformationStore() *TransformationStore {
	return &TransformationStore{
		records: make(map[uuid.UUID]*domain.Transformation),
	}
}

// Create saves a new transformation record.
func (s *TransformationStore) Create(_ context.Context, t *domain.Transformation) error {
	if err := t.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[t.ID]; exists {
		return store.ErrDuplicate
	}

	cp := *t
	s.records[t.ID] = &cp
	return nil
}

// GetByID retrieves a transformation by its unique ID.
func (s *TransformationStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Transformation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, store.ErrTransformationNotFound
	}

	cp := *rec
	return &cp, nil
}

// Transition atomically moves a transformation from one status to another.
// The status check and the write happen under the same lock, which is the
// in-memory equivalent of the postgres SELECT ... FOR UPDATE guard.
func (s *TransformationStore) Transition(
	_ context.Context,
	id uuid.UUID,
	from, to domain.TransformationStatus,
	mutate store.TransitionFn,
) (*domain.Transformation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, store.ErrTransformationNotFound
	}

	if err := domain.CheckTransition(rec.Status, to); err != nil {
		return nil, err
	}
	if rec.Status != from {
		// Legal target but stale expectation: the record moved underneath
		// the caller (e.g. a concurrent cancel).
		return nil, domain.ErrInvalidTransition
	}

	cp := *rec
	cp.Status = to
	now := time.Now().UTC()
	cp.UpdatedAt = now
	if to.IsTerminal() {
		cp.CompletedAt = &now
	}
	if mutate != nil {
		mutate(&cp)
	}

	s.records[id] = &cp
	out := cp
	return &out, nil
}

// UpdateProgress records pipeline progress for a processing transformation.
func (s *TransformationStore) UpdateProgress(
	_ context.Context,
	id uuid.UUID,
	progress float64,
	step domain.PipelineStep,
) error {
	if progress < 0 || progress > 1 {
		return domain.ErrInvalidProgress
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return store.ErrTransformationNotFound
	}

	if rec.Status != domain.StatusProcessing {
		return domain.ErrInvalidTransition
	}

	if progress < rec.Progress {
		// Progress never decreases within an attempt.
		return domain.ErrInvalidProgress
	}

	rec.Progress = progress
	rec.CurrentStep = step
	rec.UpdatedAt = time.Now().UTC()
	return nil
}
