package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/artivo/restyle-api/internal/api/shared"
	"github.com/artivo/restyle-api/internal/domain"
	"github.com/artivo/restyle-api/internal/store"
)

// WebhookHandler handles webhook subscription HTTP requests.
type WebhookHandler struct {
	subscribers store.WebhookSubscriberStore
	validator   *validator.Validate
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(subscribers store.WebhookSubscriberStore) *WebhookHandler {
	return &WebhookHandler{
		subscribers: subscribers,
		validator:   validator.New(),
	}
}

// RegisterWebhook handles POST /api/webhooks requests.
func (h *WebhookHandler) RegisterWebhook(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := getOwnerIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Owner ID not found or invalid")
		return
	}

	var req RegisterWebhookRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	sub, err := domain.NewWebhookSubscriber(ownerID, req.CallbackURL, req.EventFilter, req.Secret)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	if err := h.subscribers.Create(r.Context(), sub); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, webhookToResponse(sub))
}

// UnregisterWebhook handles DELETE /api/webhooks/{id} requests.
func (h *WebhookHandler) UnregisterWebhook(w http.ResponseWriter, r *http.Request) {
	ownerID, id, ok := handleOwnerIDAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	sub, err := h.subscribers.GetByID(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if sub.OwnerID != ownerID {
		HandleAPIError(w, r, store.ErrSubscriberNotFound, "")
		return
	}

	if err := h.subscribers.Delete(r.Context(), id); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
