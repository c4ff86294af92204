package domain

import (
	"errors"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Webhook-specific validation errors
var (
	// ErrSubscriberIDEmpty is returned when a subscriber ID is empty or nil.
	ErrSubscriberIDEmpty = errors.New("webhook subscriber ID cannot be empty")

	// ErrSubscriberURLInvalid is returned when a subscriber's callback URL
	// is missing or not an absolute http(s) URL.
	ErrSubscriberURLInvalid = errors.New("webhook subscriber callback URL must be an absolute http or https URL")

	// ErrSubscriberFilterEmpty is returned when a subscriber has no event filter.
	ErrSubscriberFilterEmpty = errors.New("webhook subscriber event filter cannot be empty")
)

// EventFilterAll is the wildcard filter entry matching every event name.
const EventFilterAll = "*"

// WebhookSubscriber is an external HTTP endpoint registered to receive
// event notifications. When Secret is set, deliveries carry an HMAC-SHA256
// signature over the request body.
type WebhookSubscriber struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	CallbackURL string    `json:"callback_url"`
	EventFilter []string  `json:"event_filter"`
	Secret      string    `json:"-"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewWebhookSubscriber creates an active subscriber for the given callback
// URL and event filter. An empty filter subscribes to all events.
func NewWebhookSubscriber(
	ownerID uuid.UUID,
	callbackURL string,
	eventFilter []string,
	secret string,
) (*WebhookSubscriber, error) {
	if len(eventFilter) == 0 {
		eventFilter = []string{EventFilterAll}
	}

	s := &WebhookSubscriber{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		CallbackURL: callbackURL,
		EventFilter: eventFilter,
		Secret:      secret,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

// Validate checks if the WebhookSubscriber has valid data.
func (s *WebhookSubscriber) Validate() error {
	if s.ID == uuid.Nil {
		return ErrSubscriberIDEmpty
	}

	u, err := url.Parse(s.CallbackURL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrSubscriberURLInvalid
	}

	if len(s.EventFilter) == 0 {
		return ErrSubscriberFilterEmpty
	}

	return nil
}

// Matches reports whether the subscriber's filter includes the given
// event name, either explicitly or via the wildcard entry.
func (s *WebhookSubscriber) Matches(eventName string) bool {
	for _, f := range s.EventFilter {
		if f == EventFilterAll || f == eventName {
			return true
		}
	}
	return false
}
