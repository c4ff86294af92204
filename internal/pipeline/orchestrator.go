// Package pipeline contains the transformation orchestrator: submission,
// the per-attempt processing sequence, cancellation, and the terminal
// bookkeeping that the worker pool drives on failures.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/artivo/restyle-api/internal/domain"
	"github.com/artivo/restyle-api/internal/events"
	"github.com/artivo/restyle-api/internal/platform/logger"
	"github.com/artivo/restyle-api/internal/queue"
	"github.com/artivo/restyle-api/internal/store"
)

// SubmitRequest carries a validated transformation submission. ID is
// optional; when a client supplies one, resubmission with the same ID is
// an idempotent no-op returning the existing record.
type SubmitRequest struct {
	ID             uuid.UUID
	OwnerID        uuid.UUID
	SourceAssetRef string
	StyleRef       string
	Quality        domain.Quality
	Priority       domain.Priority
}

// Orchestrator coordinates the transformation pipeline: it owns the
// submission path, the per-attempt processing sequence executed by the
// worker pool, and cancellation.
type Orchestrator struct {
	transformations  store.TransformationStore
	jobs             *queue.JobQueue
	bus              *events.Bus
	blobs            BlobStore
	transformer      Transformer
	styles           StyleCatalog
	usage            UsageRecorder
	transformTimeout time.Duration
	logger           *slog.Logger
}

// NewOrchestrator wires the pipeline together.
func NewOrchestrator(
	transformations store.TransformationStore,
	jobs *queue.JobQueue,
	bus *events.Bus,
	blobs BlobStore,
	transformer Transformer,
	styles StyleCatalog,
	usage UsageRecorder,
	transformTimeout time.Duration,
	log *slog.Logger,
) *Orchestrator {
	if transformTimeout <= 0 {
		transformTimeout = 120 * time.Second
	}
	return &Orchestrator{
		transformations:  transformations,
		jobs:             jobs,
		bus:              bus,
		blobs:            blobs,
		transformer:      transformer,
		styles:           styles,
		usage:            usage,
		transformTimeout: transformTimeout,
		logger:           log.With("component", "pipeline_orchestrator"),
	}
}

// Submit validates the request, creates the transformation record in the
// queued status, and enqueues the job. A duplicate submission by the same
// owner for an ID that is still queued or in flight returns the existing
// record unchanged; an ID already held by another owner is rejected with
// store.ErrDuplicate so the record never crosses owners.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*domain.Transformation, error) {
	log := logger.FromContextOrDefault(ctx, o.logger)

	if req.ID != uuid.Nil {
		existing, err := o.transformations.GetByID(ctx, req.ID)
		if err == nil {
			if existing.OwnerID != req.OwnerID {
				return nil, store.ErrDuplicate
			}
			log.Debug("duplicate submission, returning existing record",
				"transformation_id", existing.ID,
				"status", existing.Status)
			return existing, nil
		}
		if !errors.Is(err, store.ErrTransformationNotFound) {
			return nil, err
		}
	}

	t, err := domain.NewTransformation(req.OwnerID, req.SourceAssetRef, req.StyleRef, req.Quality, req.Priority)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if req.ID != uuid.Nil {
		t.ID = req.ID
	}

	if err := o.transformations.Create(ctx, t); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Lost a race with a concurrent submission; the same owner check
			// applies to whatever record won.
			existing, getErr := o.transformations.GetByID(ctx, t.ID)
			if getErr != nil {
				return nil, getErr
			}
			if existing.OwnerID != req.OwnerID {
				return nil, store.ErrDuplicate
			}
			return existing, nil
		}
		return nil, err
	}

	err = o.jobs.Enqueue(queue.Payload{
		JobID:          t.ID,
		OwnerID:        t.OwnerID,
		SourceAssetRef: t.SourceAssetRef,
		StyleRef:       t.StyleRef,
		Priority:       t.Priority,
	})
	if err != nil {
		if errors.Is(err, queue.ErrAlreadyQueued) {
			return t, nil
		}
		// The record exists but no job will run it; fail it terminally so
		// the client is not left polling a queued record forever.
		o.failRecord(ctx, t.ID, domain.StatusQueued, &domain.TransformationError{
			Code:      "enqueue_failed",
			Message:   err.Error(),
			Retryable: false,
		})
		return nil, err
	}

	log.Info("transformation submitted",
		"transformation_id", t.ID,
		"owner_id", t.OwnerID,
		"style_ref", t.StyleRef,
		"priority", t.Priority)
	return t, nil
}

// Process runs one attempt of the pipeline for a dequeued job:
// resolve inputs, claim the record, download, transform, upload, complete.
// A nil return means the attempt settled (including losing a cancellation
// race) and the job should be acked; a non-nil return is classified by
// IsRetryable for the worker's Nack decision.
func (o *Orchestrator) Process(ctx context.Context, entry *queue.Entry) error {
	log := logger.FromContextOrDefault(ctx, o.logger).With(
		"transformation_id", entry.JobID,
		"attempt", entry.Attempts,
	)

	// Resolve the style before touching the record: an unknown style can
	// never succeed, no matter how many attempts it gets.
	style, err := o.styles.GetStyle(ctx, entry.Payload.StyleRef)
	if err != nil {
		if errors.Is(err, ErrStyleNotFound) {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		return fmt.Errorf("failed to resolve style %q: %w", entry.Payload.StyleRef, err)
	}

	// Claim the record. Losing this CAS means a cancel landed while the
	// job sat in the queue; the attempt settles quietly.
	record, err := o.transformations.Transition(ctx, entry.JobID,
		domain.StatusQueued, domain.StatusProcessing,
		func(t *domain.Transformation) {
			t.Progress = 0
			t.CurrentStep = ""
			t.Attempts = entry.Attempts
			t.Error = nil
		})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyTerminal) || errors.Is(err, domain.ErrInvalidTransition) {
			log.Info("skipping attempt, record no longer queued")
			return nil
		}
		if errors.Is(err, store.ErrTransformationNotFound) {
			return fmt.Errorf("%w: transformation record missing", ErrInvalidInput)
		}
		return fmt.Errorf("failed to claim transformation: %w", err)
	}

	if done, err := o.checkpoint(ctx, entry.JobID, 0.1, domain.StepUploading); done || err != nil {
		return err
	}
	source, err := o.blobs.Download(ctx, entry.Payload.SourceAssetRef)
	if err != nil {
		if errors.Is(err, ErrAssetNotFound) {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		return fmt.Errorf("failed to download source asset: %w", err)
	}

	if done, err := o.checkpoint(ctx, entry.JobID, 0.3, domain.StepAnalyzing); done || err != nil {
		return err
	}

	if done, err := o.checkpoint(ctx, entry.JobID, 0.5, domain.StepTransforming); done || err != nil {
		return err
	}
	transformCtx, cancel := context.WithTimeout(ctx, o.transformTimeout)
	output, err := o.transformer.Transform(transformCtx, TransformRequest{
		Source:  source,
		Style:   style,
		Quality: record.Quality,
	})
	cancel()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransformFailed, err)
	}

	if done, err := o.checkpoint(ctx, entry.JobID, 0.7, domain.StepFinalizing); done || err != nil {
		return err
	}
	outputRef := fmt.Sprintf("outputs/%s%s", entry.JobID, extensionFor(output.Result.MIMEType))
	if err := o.blobs.Upload(ctx, outputRef, output.Result); err != nil {
		return fmt.Errorf("failed to upload result asset: %w", err)
	}

	result := &domain.TransformationResult{
		OutputAssetRef: outputRef,
		Analysis:       output.Analysis,
	}
	completed, err := o.transformations.Transition(ctx, entry.JobID,
		domain.StatusProcessing, domain.StatusCompleted,
		func(t *domain.Transformation) {
			t.Progress = 1.0
			t.CurrentStep = domain.StepFinalizing
			t.Result = result
			t.Error = nil
		})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyTerminal) {
			log.Info("completion lost race with cancel, discarding result")
			return nil
		}
		return fmt.Errorf("failed to complete transformation: %w", err)
	}

	if err := o.usage.IncrementUsage(ctx, completed.OwnerID); err != nil {
		log.Warn("failed to record usage", "owner_id", completed.OwnerID, "error", err)
	}

	o.publish(events.EventTransformationCompleted, completed)
	log.Info("transformation completed", "output_asset_ref", outputRef)
	return nil
}

// Cancel moves a transformation to the cancelled status unless it has
// already reached a terminal one. An in-flight attempt is not interrupted;
// its late terminal write loses the CAS race against this one.
func (o *Orchestrator) Cancel(ctx context.Context, id uuid.UUID) (*domain.Transformation, error) {
	log := logger.FromContextOrDefault(ctx, o.logger)

	// The CAS needs the current status as its expectation; one retry
	// covers the record moving between read and write.
	for attempt := 0; attempt < 2; attempt++ {
		record, err := o.transformations.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if record.Status.IsTerminal() {
			return nil, domain.ErrAlreadyTerminal
		}

		cancelled, err := o.transformations.Transition(ctx, id,
			record.Status, domain.StatusCancelled, nil)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				continue
			}
			return nil, err
		}

		o.publish(events.EventTransformationCancelled, cancelled)
		log.Info("transformation cancelled",
			"transformation_id", id,
			"was", record.Status)
		return cancelled, nil
	}

	return nil, domain.ErrInvalidTransition
}

// MarkRetrying returns a failed-but-retryable record to the queued status
// ahead of its next attempt and emits a retrying event.
func (o *Orchestrator) MarkRetrying(ctx context.Context, entry *queue.Entry, cause error) {
	log := logger.FromContextOrDefault(ctx, o.logger)

	record, err := o.transformations.Transition(ctx, entry.JobID,
		domain.StatusProcessing, domain.StatusQueued,
		func(t *domain.Transformation) {
			t.Progress = 0
			t.CurrentStep = ""
			t.Error = &domain.TransformationError{
				Code:      errorCode(cause),
				Message:   cause.Error(),
				Retryable: true,
			}
		})
	if err != nil {
		// Already terminal means a cancel won; anything else is logged
		// and the retry proceeds on the queue's authority alone.
		if !errors.Is(err, domain.ErrAlreadyTerminal) {
			log.Error("failed to return transformation to queued",
				"transformation_id", entry.JobID,
				"error", err)
		}
		return
	}

	o.publish(events.EventTransformationRetrying, record)
	log.Info("transformation attempt failed, retrying",
		"transformation_id", entry.JobID,
		"attempt", entry.Attempts,
		"error", cause)
}

// MarkFailed terminally fails a record after a non-retryable error or
// retry exhaustion and emits a failed event. Retryable is always recorded
// false here: the queue has given up, so resubmission is a new request.
func (o *Orchestrator) MarkFailed(ctx context.Context, entry *queue.Entry, cause error) {
	log := logger.FromContextOrDefault(ctx, o.logger)

	failed := o.failRecord(ctx, entry.JobID, domain.StatusProcessing, &domain.TransformationError{
		Code:      errorCode(cause),
		Message:   cause.Error(),
		Retryable: false,
	})
	if failed == nil {
		return
	}

	o.publish(events.EventTransformationFailed, failed)
	log.Info("transformation failed terminally",
		"transformation_id", entry.JobID,
		"attempts", entry.Attempts,
		"error", cause)
}

// failRecord performs the terminal failed transition, tolerating a lost
// race with cancellation.
func (o *Orchestrator) failRecord(
	ctx context.Context,
	id uuid.UUID,
	from domain.TransformationStatus,
	terr *domain.TransformationError,
) *domain.Transformation {
	failed, err := o.transformations.Transition(ctx, id, from, domain.StatusFailed,
		func(t *domain.Transformation) {
			t.Error = terr
		})
	if err != nil {
		if !errors.Is(err, domain.ErrAlreadyTerminal) {
			o.logger.Error("failed to mark transformation failed",
				"transformation_id", id,
				"error", err)
		}
		return nil
	}
	return failed
}

// checkpoint records a progress step. It reports done=true when the write
// was rejected because the record left the processing status (a cancel
// landed); the attempt then settles quietly.
func (o *Orchestrator) checkpoint(
	ctx context.Context,
	id uuid.UUID,
	progress float64,
	step domain.PipelineStep,
) (done bool, err error) {
	err = o.transformations.UpdateProgress(ctx, id, progress, step)
	if err == nil {
		return false, nil
	}

	if errors.Is(err, domain.ErrInvalidTransition) {
		record, getErr := o.transformations.GetByID(ctx, id)
		if getErr == nil && record.Status.IsTerminal() {
			o.logger.Info("abandoning attempt, record reached terminal status",
				"transformation_id", id,
				"status", record.Status)
			return true, nil
		}
	}
	return false, fmt.Errorf("failed to record progress at %q: %w", step, err)
}

// publish emits a lifecycle event for the given record.
func (o *Orchestrator) publish(name string, t *domain.Transformation) {
	payload := events.TransformationEventPayload{
		TransformationID: t.ID,
		Status:           string(t.Status),
		Progress:         t.Progress,
		Attempts:         t.Attempts,
	}
	if t.Result != nil {
		payload.ResultAssetRef = t.Result.OutputAssetRef
	}
	if t.Error != nil {
		payload.ErrorCode = t.Error.Code
		payload.ErrorMessage = t.Error.Message
	}

	event, err := events.NewEvent(name, t.OwnerID, payload)
	if err != nil {
		o.logger.Error("failed to build event", "event", name, "error", err)
		return
	}
	o.bus.Publish(event)
}

// extensionFor picks an output file extension from the result MIME type.
func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
