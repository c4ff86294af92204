package postgres

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/artivo/restyle-api/internal/platform/logger"
	"github.com/artivo/restyle-api/internal/store"
)

// PostgresUsageRecorder implements the pipeline.UsageRecorder interface
// using PostgreSQL. Counts accumulate per owner via upsert. The store
// works against store.DBTX so the increment can run inside an enclosing
// transaction.
type PostgresUsageRecorder struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresUsageRecorder creates a new PostgresUsageRecorder.
func NewPostgresUsageRecorder(db *sql.DB, logger *slog.Logger) *PostgresUsageRecorder {
	return &PostgresUsageRecorder{
		db:     db,
		logger: logger.With("component", "postgres_usage_recorder"),
	}
}

// WithTx returns a copy of the recorder bound to the given transaction.
func (r *PostgresUsageRecorder) WithTx(tx *sql.Tx) *PostgresUsageRecorder {
	return &PostgresUsageRecorder{
		db:     tx,
		logger: r.logger,
	}
}

// IncrementUsage adds one completed transformation to the owner's tally.
func (r *PostgresUsageRecorder) IncrementUsage(ctx context.Context, ownerID uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, r.logger)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO owner_usage (owner_id, completed_count, updated_at)
		VALUES ($1, 1, $2)
		ON CONFLICT (owner_id)
		DO UPDATE SET completed_count = owner_usage.completed_count + 1,
		              updated_at = EXCLUDED.updated_at
	`, ownerID, time.Now().UTC())
	if err != nil {
		log.Error("failed to increment owner usage", "owner_id", ownerID, "error", err)
		return MapError(err)
	}
	return nil
}
