package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Transformation-specific validation errors
var (
	// ErrTransformationIDEmpty is returned when a transformation ID is empty or nil.
	ErrTransformationIDEmpty = errors.New("transformation ID cannot be empty")

	// ErrTransformationOwnerEmpty is returned when a transformation's owner ID is empty or nil.
	ErrTransformationOwnerEmpty = errors.New("transformation owner ID cannot be empty")

	// ErrTransformationSourceEmpty is returned when a transformation has no source asset reference.
	ErrTransformationSourceEmpty = errors.New("transformation source asset reference cannot be empty")

	// ErrTransformationStyleEmpty is returned when a transformation has no style reference.
	ErrTransformationStyleEmpty = errors.New("transformation style reference cannot be empty")

	// ErrInvalidQuality is returned when a transformation's quality is not a known value.
	ErrInvalidQuality = errors.New("transformation quality must be standard, high, or ultra")

	// ErrInvalidPriority is returned when a transformation's priority is not a known value.
	ErrInvalidPriority = errors.New("transformation priority must be normal or high")

	// ErrInvalidProgress is returned when a progress value falls outside [0, 1].
	ErrInvalidProgress = errors.New("transformation progress must be between 0 and 1")
)

// State machine errors
var (
	// ErrInvalidTransition is returned when a status change violates the
	// transformation state machine.
	ErrInvalidTransition = errors.New("invalid transformation status transition")

	// ErrAlreadyTerminal is returned when a write targets a transformation
	// that has already reached a terminal status.
	ErrAlreadyTerminal = errors.New("transformation is already in a terminal status")
)

// TransformationStatus represents the lifecycle state of a transformation.
type TransformationStatus string

// Possible transformation status values
const (
	StatusQueued     TransformationStatus = "queued"
	StatusProcessing TransformationStatus = "processing"
	StatusCompleted  TransformationStatus = "completed"
	StatusFailed     TransformationStatus = "failed"
	StatusCancelled  TransformationStatus = "cancelled"
)

// PipelineStep identifies which stage of the pipeline a processing
// transformation is currently in.
type PipelineStep string

// Possible pipeline step values
const (
	StepUploading    PipelineStep = "uploading"
	StepAnalyzing    PipelineStep = "analyzing"
	StepTransforming PipelineStep = "transforming"
	StepFinalizing   PipelineStep = "finalizing"
)

// Quality controls the fidelity of the transform output.
type Quality string

// Possible quality values
const (
	QualityStandard Quality = "standard"
	QualityHigh     Quality = "high"
	QualityUltra    Quality = "ultra"
)

// Priority controls queue ordering between jobs.
type Priority string

// Possible priority values
const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// TransformationResult holds the output of a successfully completed
// transformation: references into the blob store plus the analysis payload
// returned by the transform model.
type TransformationResult struct {
	OutputAssetRef string `json:"output_asset_ref"`
	ThumbnailRef   string `json:"thumbnail_ref,omitempty"`
	Analysis       string `json:"analysis,omitempty"`
}

// TransformationError describes why a transformation failed. Retryable
// reports whether resubmitting the same request could succeed; after retry
// exhaustion it is false even when the underlying cause was transient.
type TransformationError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Transformation is the unit of work: one request to transform one source
// asset with one style, plus its outcome. Once the status is terminal
// (completed, failed, or cancelled) the record is immutable.
type Transformation struct {
	ID             uuid.UUID             `json:"id"`
	OwnerID        uuid.UUID             `json:"owner_id"`
	SourceAssetRef string                `json:"source_asset_ref"`
	StyleRef       string                `json:"style_ref"`
	Quality        Quality               `json:"quality"`
	Priority       Priority              `json:"priority"`
	Status         TransformationStatus  `json:"status"`
	Progress       float64               `json:"progress"`
	CurrentStep    PipelineStep          `json:"current_step,omitempty"`
	Attempts       int                   `json:"attempts"`
	Result         *TransformationResult `json:"result,omitempty"`
	Error          *TransformationError  `json:"error,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
	CompletedAt    *time.Time            `json:"completed_at,omitempty"`
}

// NewTransformation creates a new Transformation in the queued status.
// It generates a new UUID for the record and sets the creation/update
// timestamps. Returns an error if validation fails.
func NewTransformation(
	ownerID uuid.UUID,
	sourceAssetRef, styleRef string,
	quality Quality,
	priority Priority,
) (*Transformation, error) {
	now := time.Now().UTC()
	t := &Transformation{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		SourceAssetRef: sourceAssetRef,
		StyleRef:       styleRef,
		Quality:        quality,
		Priority:       priority,
		Status:         StatusQueued,
		Progress:       0,
		Attempts:       0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}

	return t, nil
}

// Validate checks if the Transformation has valid data.
// Returns an error if any field fails validation.
func (t *Transformation) Validate() error {
	if t.ID == uuid.Nil {
		return ErrTransformationIDEmpty
	}

	if t.OwnerID == uuid.Nil {
		return ErrTransformationOwnerEmpty
	}

	if t.SourceAssetRef == "" {
		return ErrTransformationSourceEmpty
	}

	if t.StyleRef == "" {
		return ErrTransformationStyleEmpty
	}

	switch t.Quality {
	case QualityStandard, QualityHigh, QualityUltra:
	default:
		return ErrInvalidQuality
	}

	switch t.Priority {
	case PriorityNormal, PriorityHigh:
	default:
		return ErrInvalidPriority
	}

	if t.Progress < 0 || t.Progress > 1 {
		return ErrInvalidProgress
	}

	return nil
}

// IsTerminal reports whether the status permits no further transitions.
func (s TransformationStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether the state machine permits moving from one
// status to another. The legal transitions are:
//
//	queued     -> processing | cancelled | failed
//	processing -> completed | failed | cancelled | queued (retry re-entry)
//
// There is no transition out of a terminal status, and no self-transition.
func CanTransition(from, to TransformationStatus) bool {
	if from.IsTerminal() {
		return false
	}

	switch from {
	case StatusQueued:
		return to == StatusProcessing || to == StatusCancelled || to == StatusFailed
	case StatusProcessing:
		return to == StatusCompleted ||
			to == StatusFailed ||
			to == StatusCancelled ||
			to == StatusQueued
	}

	return false
}

// CheckTransition validates a status change against the state machine,
// distinguishing writes rejected because the record is already terminal
// from writes that are simply illegal.
func CheckTransition(from, to TransformationStatus) error {
	if from.IsTerminal() {
		return ErrAlreadyTerminal
	}
	if !CanTransition(from, to) {
		return ErrInvalidTransition
	}
	return nil
}
