package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/artivo/restyle-api/internal/api/shared"
	"github.com/artivo/restyle-api/internal/domain"
	"github.com/artivo/restyle-api/internal/pipeline"
	"github.com/artivo/restyle-api/internal/store"
)

// TransformationHandler handles transformation-related HTTP requests.
type TransformationHandler struct {
	orchestrator *pipeline.Orchestrator
	records      store.TransformationStore
	validator    *validator.Validate
}

// NewTransformationHandler creates a new TransformationHandler.
func NewTransformationHandler(
	orchestrator *pipeline.Orchestrator,
	records store.TransformationStore,
) *TransformationHandler {
	return &TransformationHandler{
		orchestrator: orchestrator,
		records:      records,
		validator:    validator.New(),
	}
}

// SubmitTransformation handles POST /api/transformations requests.
func (h *TransformationHandler) SubmitTransformation(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := getOwnerIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Owner ID not found or invalid")
		return
	}

	var req SubmitTransformationRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	submitReq := pipeline.SubmitRequest{
		OwnerID:        ownerID,
		SourceAssetRef: req.SourceAssetRef,
		StyleRef:       req.StyleRef,
		Quality:        domain.Quality(req.Quality),
		Priority:       domain.Priority(req.Priority),
	}
	if req.ID != "" {
		// Validated as a UUID above.
		submitReq.ID = uuid.MustParse(req.ID)
	}
	if submitReq.Quality == "" {
		submitReq.Quality = domain.QualityStandard
	}
	if submitReq.Priority == "" {
		submitReq.Priority = domain.PriorityNormal
	}

	record, err := h.orchestrator.Submit(r.Context(), submitReq)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	// Processing happens asynchronously.
	shared.RespondWithJSON(w, r, http.StatusAccepted, transformationToResponse(record))
}

// GetTransformation handles GET /api/transformations/{id} requests.
func (h *TransformationHandler) GetTransformation(w http.ResponseWriter, r *http.Request) {
	ownerID, id, ok := handleOwnerIDAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	record, err := h.records.GetByID(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if record.OwnerID != ownerID {
		// Do not reveal the record's existence to other owners.
		HandleAPIError(w, r, store.ErrTransformationNotFound, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, transformationToResponse(record))
}

// CancelTransformation handles POST /api/transformations/{id}/cancel
// requests.
func (h *TransformationHandler) CancelTransformation(w http.ResponseWriter, r *http.Request) {
	ownerID, id, ok := handleOwnerIDAndPathUUID(w, r, "id")
	if !ok {
		return
	}

	record, err := h.records.GetByID(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if record.OwnerID != ownerID {
		HandleAPIError(w, r, store.ErrTransformationNotFound, "")
		return
	}

	cancelled, err := h.orchestrator.Cancel(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, transformationToResponse(cancelled))
}
