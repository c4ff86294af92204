package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/artivo/restyle-api/internal/domain"
)

// TransitionFn mutates a transformation as part of a guarded status
// transition. It runs after the state machine check has passed and before
// the record is written back, so the mutation and the status change land
// atomically. Implementations must not retain the record after returning.
type TransitionFn func(t *domain.Transformation)

// TransformationStore defines the interface for transformation record
// persistence. All status-changing writes go through Transition, which
// performs a compare-and-set against the current status so a worker's late
// terminal write loses the race against a concurrent cancel.
// Version: 1.0
type TransformationStore interface {
	// Create saves a new transformation record.
	// Returns ErrDuplicate if a record with the same ID already exists.
	Create(ctx context.Context, t *domain.Transformation) error

	// GetByID retrieves a transformation by its unique ID.
	// Returns ErrTransformationNotFound if the record does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transformation, error)

	// Transition atomically moves a transformation from one status to
	// another, applying mutate (may be nil) to the record under the same
	// guard. The write only happens when the stored status equals from and
	// the state machine permits from -> to.
	//
	// Returns ErrTransformationNotFound if the record does not exist,
	// domain.ErrAlreadyTerminal if the stored status is terminal, and
	// domain.ErrInvalidTransition if the stored status does not match from
	// or the transition is illegal. Terminal target statuses set
	// CompletedAt.
	Transition(
		ctx context.Context,
		id uuid.UUID,
		from, to domain.TransformationStatus,
		mutate TransitionFn,
	) (*domain.Transformation, error)

	// UpdateProgress records pipeline progress for a processing
	// transformation. The write is guarded: it only applies while the
	// record is in the processing status and the new progress is not lower
	// than the stored one, keeping progress monotonically non-decreasing
	// within an attempt.
	//
	// Returns ErrTransformationNotFound if the record does not exist,
	// domain.ErrInvalidTransition if the record is not processing, and
	// domain.ErrInvalidProgress if progress is outside [0, 1] or lower
	// than the stored value.
	UpdateProgress(
		ctx context.Context,
		id uuid.UUID,
		progress float64,
		step domain.PipelineStep,
	) error
}
