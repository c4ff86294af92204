package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/artivo/restyle-api/internal/domain"
	"github.com/artivo/restyle-api/internal/platform/logger"
	"github.com/artivo/restyle-api/internal/store"
)

// PostgresWebhookSubscriberStore implements the store.WebhookSubscriberStore
// interface using PostgreSQL. The event filter is stored as JSONB.
type PostgresWebhookSubscriberStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresWebhookSubscriberStore creates a new PostgresWebhookSubscriberStore.
func NewPostgresWebhookSubscriberStore(db *sql.DB, logger *slog.Logger) *PostgresWebhookSubscriberStore {
	return &PostgresWebhookSubscriberStore{
		db:     db,
		logger: logger.With("component", "postgres_webhook_store"),
	}
}

// Create saves a new webhook subscriber.
func (s *PostgresWebhookSubscriberStore) Create(ctx context.Context, sub *domain.WebhookSubscriber) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := sub.Validate(); err != nil {
		return err
	}

	filterJSON, err := json.Marshal(sub.EventFilter)
	if err != nil {
		return fmt.Errorf("failed to marshal event filter: %w", err)
	}

	query := `
		INSERT INTO webhook_subscribers
			(id, owner_id, callback_url, event_filter, secret, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = s.db.ExecContext(ctx, query,
		sub.ID, sub.OwnerID, sub.CallbackURL, filterJSON, sub.Secret, sub.Active, sub.CreatedAt,
	)
	if err != nil {
		log.Error("failed to create webhook subscriber",
			"subscriber_id", sub.ID,
			"error", err)
		return MapError(err)
	}

	return nil
}

// GetByID retrieves a subscriber by its unique ID.
func (s *PostgresWebhookSubscriberStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookSubscriber, error) {
	row := s.db.QueryRowContext(ctx, selectSubscriber+` WHERE id = $1`, id)
	sub, err := scanSubscriber(row)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, store.ErrSubscriberNotFound
		}
		return nil, MapError(err)
	}
	return sub, nil
}

// Delete removes a subscriber by its ID.
func (s *PostgresWebhookSubscriberStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM webhook_subscribers WHERE id = $1`, id)
	if err != nil {
		return MapError(err)
	}
	if err := CheckRowsAffected(res, "webhook subscriber"); err != nil {
		return store.ErrSubscriberNotFound
	}
	return nil
}

// ListActive returns all active subscribers.
func (s *PostgresWebhookSubscriberStore) ListActive(ctx context.Context) ([]*domain.WebhookSubscriber, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, selectSubscriber+` WHERE active ORDER BY created_at ASC`)
	if err != nil {
		log.Error("failed to list active webhook subscribers", "error", err)
		return nil, MapError(err)
	}
	defer rows.Close()

	var subs []*domain.WebhookSubscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, MapError(err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return subs, nil
}

// selectSubscriber is the shared column list for row scans.
const selectSubscriber = `
	SELECT id, owner_id, callback_url, event_filter, secret, active, created_at
	FROM webhook_subscribers`

// scanSubscriber reads one subscriber row.
func scanSubscriber(row rowScanner) (*domain.WebhookSubscriber, error) {
	var (
		sub        domain.WebhookSubscriber
		filterJSON []byte
	)

	err := row.Scan(
		&sub.ID, &sub.OwnerID, &sub.CallbackURL, &filterJSON,
		&sub.Secret, &sub.Active, &sub.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(filterJSON, &sub.EventFilter); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event filter: %w", err)
	}

	return &sub, nil
}
