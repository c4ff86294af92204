package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/artivo/restyle-api/internal/domain"
	"github.com/artivo/restyle-api/internal/platform/logger"
	"github.com/artivo/restyle-api/internal/store"
)

// PostgresTransformationStore implements the store.TransformationStore
// interface using PostgreSQL. Status transitions run inside a transaction
// with SELECT ... FOR UPDATE so the state machine check and the write are
// atomic with respect to a concurrent cancel.
type PostgresTransformationStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresTransformationStore creates a new PostgresTransformationStore.
func NewPostgresTransformationStore(db *sql.DB, logger *slog.Logger) *PostgresTransformationStore {
	return &PostgresTransformationStore{
		db:     db,
		logger: logger.With("component", "postgres_transformation_store"),
	}
}

// Create saves a new transformation record.
func (s *PostgresTransformationStore) Create(ctx context.Context, t *domain.Transformation) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := t.Validate(); err != nil {
		return err
	}

	resultJSON, errJSON, err := marshalOutcome(t)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO transformations
			(id, owner_id, source_asset_ref, style_ref, quality, priority,
			 status, progress, current_step, attempts, result, error,
			 created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err = s.db.ExecContext(ctx, query,
		t.ID, t.OwnerID, t.SourceAssetRef, t.StyleRef, t.Quality, t.Priority,
		t.Status, t.Progress, nullString(string(t.CurrentStep)), t.Attempts,
		resultJSON, errJSON, t.CreatedAt, t.UpdatedAt, t.CompletedAt,
	)
	if err != nil {
		log.Error("failed to create transformation",
			"transformation_id", t.ID,
			"error", err)
		return MapError(err)
	}

	return nil
}

// GetByID retrieves a transformation by its unique ID.
func (s *PostgresTransformationStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transformation, error) {
	row := s.db.QueryRowContext(ctx, selectTransformation+` WHERE id = $1`, id)
	t, err := scanTransformation(row)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, store.ErrTransformationNotFound
		}
		return nil, MapError(err)
	}
	return t, nil
}

// Transition atomically moves a transformation from one status to another,
// applying mutate under the row lock.
func (s *PostgresTransformationStore) Transition(
	ctx context.Context,
	id uuid.UUID,
	from, to domain.TransformationStatus,
	mutate store.TransitionFn,
) (*domain.Transformation, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var result *domain.Transformation
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, selectTransformation+` WHERE id = $1 FOR UPDATE`, id)
		current, err := scanTransformation(row)
		if err != nil {
			if IsNotFoundError(err) {
				return store.ErrTransformationNotFound
			}
			return MapError(err)
		}

		if err := domain.CheckTransition(current.Status, to); err != nil {
			return err
		}
		if current.Status != from {
			// Legal target but stale expectation: the record moved
			// underneath the caller (e.g. a concurrent cancel).
			return domain.ErrInvalidTransition
		}

		current.Status = to
		now := time.Now().UTC()
		current.UpdatedAt = now
		if to.IsTerminal() {
			current.CompletedAt = &now
		}
		if mutate != nil {
			mutate(current)
		}

		resultJSON, errJSON, err := marshalOutcome(current)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE transformations
			SET status = $1, progress = $2, current_step = $3, attempts = $4,
			    result = $5, error = $6, updated_at = $7, completed_at = $8
			WHERE id = $9
		`,
			current.Status, current.Progress, nullString(string(current.CurrentStep)),
			current.Attempts, resultJSON, errJSON, current.UpdatedAt, current.CompletedAt, id,
		)
		if err != nil {
			return MapError(err)
		}
		if err := CheckRowsAffected(res, "transformation"); err != nil {
			return err
		}

		result = current
		return nil
	})
	if err != nil {
		log.Debug("transformation transition rejected",
			"transformation_id", id,
			"from", from,
			"to", to,
			"error", err)
		return nil, err
	}

	return result, nil
}

// UpdateProgress records pipeline progress for a processing transformation.
// The guard lives in the WHERE clause: the write only applies while the
// record is processing and the new progress is not lower than the stored
// one, keeping progress monotonically non-decreasing within an attempt.
func (s *PostgresTransformationStore) UpdateProgress(
	ctx context.Context,
	id uuid.UUID,
	progress float64,
	step domain.PipelineStep,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if progress < 0 || progress > 1 {
		return domain.ErrInvalidProgress
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE transformations
		SET progress = $1, current_step = $2, updated_at = $3
		WHERE id = $4 AND status = $5 AND progress <= $1
	`, progress, string(step), time.Now().UTC(), id, domain.StatusProcessing)
	if err != nil {
		log.Error("failed to update transformation progress",
			"transformation_id", id,
			"progress", progress,
			"error", err)
		return MapError(err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		// Distinguish a missing record, a non-processing record, and a
		// decreasing progress write.
		rec, err := s.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if rec.Status != domain.StatusProcessing {
			return domain.ErrInvalidTransition
		}
		return domain.ErrInvalidProgress
	}

	return nil
}

// selectTransformation is the shared column list for row scans.
const selectTransformation = `
	SELECT id, owner_id, source_asset_ref, style_ref, quality, priority,
	       status, progress, current_step, attempts, result, error,
	       created_at, updated_at, completed_at
	FROM transformations`

// rowScanner abstracts *sql.Row and *sql.Rows for scanTransformation.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTransformation reads one transformation row.
func scanTransformation(row rowScanner) (*domain.Transformation, error) {
	var (
		t           domain.Transformation
		currentStep sql.NullString
		resultJSON  []byte
		errJSON     []byte
		completedAt sql.NullTime
	)

	err := row.Scan(
		&t.ID, &t.OwnerID, &t.SourceAssetRef, &t.StyleRef, &t.Quality, &t.Priority,
		&t.Status, &t.Progress, &currentStep, &t.Attempts, &resultJSON, &errJSON,
		&t.CreatedAt, &t.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	t.CurrentStep = domain.PipelineStep(currentStep.String)
	if completedAt.Valid {
		ts := completedAt.Time
		t.CompletedAt = &ts
	}
	if len(resultJSON) > 0 {
		var r domain.TransformationResult
		if err := json.Unmarshal(resultJSON, &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transformation result: %w", err)
		}
		t.Result = &r
	}
	if len(errJSON) > 0 {
		var e domain.TransformationError
		if err := json.Unmarshal(errJSON, &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transformation error: %w", err)
		}
		t.Error = &e
	}

	return &t, nil
}

// marshalOutcome serializes the optional result and error fields to JSONB
// values, returning nil for absent fields.
func marshalOutcome(t *domain.Transformation) ([]byte, []byte, error) {
	var resultJSON, errJSON []byte
	var err error

	if t.Result != nil {
		resultJSON, err = json.Marshal(t.Result)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal transformation result: %w", err)
		}
	}
	if t.Error != nil {
		errJSON, err = json.Marshal(t.Error)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal transformation error: %w", err)
		}
	}

	return resultJSON, errJSON, nil
}

// nullString converts an empty string to a NULL-able value.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
