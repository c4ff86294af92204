package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event names published by the pipeline.
const (
	// EventTransformationCompleted fires when a transformation reaches
	// the completed status.
	EventTransformationCompleted = "transformation.completed"

	// EventTransformationFailed fires when a transformation terminally
	// fails, either on a non-retryable error or after retry exhaustion.
	EventTransformationFailed = "transformation.failed"

	// EventTransformationCancelled fires when a cancel request lands.
	EventTransformationCancelled = "transformation.cancelled"

	// EventTransformationRetrying fires when a transient failure sends a
	// transformation back to the queue for another attempt.
	EventTransformationRetrying = "transformation.retrying"
)

// Event represents one pipeline notification. It is created by the
// orchestrator on every state change of interest and consumed by both the
// live broadcast and webhook delivery paths. Events are never mutated
// after creation.
type Event struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Name identifies the event type (e.g. "transformation.completed")
	Name string `json:"name"`

	// OwnerID scopes the event to the owning account. Webhook routing
	// only delivers owner-scoped events to that owner's subscribers.
	OwnerID uuid.UUID `json:"owner_id"`

	// Payload contains the event-specific data serialized as JSON
	Payload json.RawMessage `json:"payload"`

	// Timestamp is when the event was created
	Timestamp time.Time `json:"timestamp"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *Event) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// NewEvent creates a new Event with the specified name, owner and payload.
func NewEvent(name string, ownerID uuid.UUID, payload interface{}) (*Event, error) {
	// Serialize the payload to JSON
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        uuid.New(),
		Name:      name,
		OwnerID:   ownerID,
		Payload:   payloadBytes,
		Timestamp: time.Now().UTC(),
	}, nil
}

// TransformationEventPayload is the payload attached to every
// transformation lifecycle event.
type TransformationEventPayload struct {
	TransformationID uuid.UUID `json:"transformationId"`
	Status           string    `json:"status"`
	Progress         float64   `json:"progress"`
	Attempts         int       `json:"attempts"`
	ResultAssetRef   string    `json:"resultAssetRef,omitempty"`
	ErrorCode        string    `json:"errorCode,omitempty"`
	ErrorMessage     string    `json:"errorMessage,omitempty"`
}
