package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/artivo/restyle-api/internal/domain"
)

// WebhookSubscriberStore defines the interface for webhook subscriber
// persistence.
// Version: 1.0
type WebhookSubscriberStore interface {
	// Create saves a new webhook subscriber.
	// Returns ErrDuplicate if a subscriber with the same ID already exists.
	Create(ctx context.Context, s *domain.WebhookSubscriber) error

	// GetByID retrieves a subscriber by its unique ID.
	// Returns ErrSubscriberNotFound if the subscriber does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookSubscriber, error)

	// Delete removes a subscriber by its ID.
	// Returns ErrSubscriberNotFound if the subscriber does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// ListActive returns all active subscribers. The dispatcher filters
	// the result per event by name and owner.
	ListActive(ctx context.Context) ([]*domain.WebhookSubscriber, error)
}
