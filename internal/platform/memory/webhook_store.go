package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/artivo/restyle-api/internal/domain"
	"github.com/artivo/restyle-api/internal/store"
)

// WebhookSubscriberStore is an in-memory implementation of
// store.WebhookSubscriberStore.
type WebhookSubscriberStore struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]*domain.WebhookSubscriber
}

// NewWebhookSubscriberStore creates an empty in-memory subscriber store.
func NewWebhookSubscriberStore() *WebhookSubscriberStore {
	return &WebhookSubscriberStore{
		subscribers: make(map[uuid.UUID]*domain.WebhookSubscriber),
	}
}

// Create saves a new webhook subscriber.
func (s *WebhookSubscriberStore) Create(_ context.Context, sub *domain.WebhookSubscriber) error {
	if err := sub.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscribers[sub.ID]; exists {
		return store.ErrDuplicate
	}

	cp := *sub
	s.subscribers[sub.ID] = &cp
	return nil
}

// GetByID retrieves a subscriber by its unique ID.
func (s *WebhookSubscriberStore) GetByID(_ context.Context, id uuid.UUID) (*domain.WebhookSubscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscribers[id]
	if !ok {
		return nil, store.ErrSubscriberNotFound
	}

	cp := *sub
	return &cp, nil
}

// Delete removes a subscriber by its ID.
func (s *WebhookSubscriberStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subscribers[id]; !ok {
		return store.ErrSubscriberNotFound
	}

	delete(s.subscribers, id)
	return nil
}

// ListActive returns all active subscribers.
func (s *WebhookSubscriberStore) ListActive(_ context.Context) ([]*domain.WebhookSubscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.WebhookSubscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		if sub.Active {
			cp := *sub
			out = append(out, &cp)
		}
	}
	return out, nil
}
