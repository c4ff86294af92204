package api

import (
	"time"

	"github.com/artivo/restyle-api/internal/domain"
)

// Common request/response structures

// SubmitTransformationRequest defines the payload for submitting a new
// transformation. ID is optional; supplying one makes resubmission
// idempotent.
type SubmitTransformationRequest struct {
	ID             string `json:"id"             validate:"omitempty,uuid"`
	SourceAssetRef string `json:"sourceAssetRef" validate:"required,min=1"`
	StyleRef       string `json:"styleRef"       validate:"required,min=1"`
	Quality        string `json:"quality"        validate:"omitempty,oneof=standard high ultra"`
	Priority       string `json:"priority"       validate:"omitempty,oneof=normal high"`
}

// TransformationErrorResponse mirrors the recorded failure cause.
type TransformationErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// TransformationResultResponse mirrors the recorded output references.
type TransformationResultResponse struct {
	OutputAssetRef string `json:"outputAssetRef"`
	ThumbnailRef   string `json:"thumbnailRef,omitempty"`
	Analysis       string `json:"analysis,omitempty"`
}

// TransformationResponse represents the response data for a transformation.
type TransformationResponse struct {
	ID             string                        `json:"id"`
	OwnerID        string                        `json:"ownerId"`
	SourceAssetRef string                        `json:"sourceAssetRef"`
	StyleRef       string                        `json:"styleRef"`
	Quality        string                        `json:"quality"`
	Priority       string                        `json:"priority"`
	Status         string                        `json:"status"`
	Progress       float64                       `json:"progress"`
	CurrentStep    string                        `json:"currentStep,omitempty"`
	Attempts       int                           `json:"attempts"`
	Result         *TransformationResultResponse `json:"result,omitempty"`
	Error          *TransformationErrorResponse  `json:"error,omitempty"`
	CreatedAt      time.Time                     `json:"createdAt"`
	UpdatedAt      time.Time                     `json:"updatedAt"`
	CompletedAt    *time.Time                    `json:"completedAt,omitempty"`
}

// transformationToResponse converts a domain.Transformation to its DTO.
func transformationToResponse(t *domain.Transformation) TransformationResponse {
	resp := TransformationResponse{
		ID:             t.ID.String(),
		OwnerID:        t.OwnerID.String(),
		SourceAssetRef: t.SourceAssetRef,
		StyleRef:       t.StyleRef,
		Quality:        string(t.Quality),
		Priority:       string(t.Priority),
		Status:         string(t.Status),
		Progress:       t.Progress,
		CurrentStep:    string(t.CurrentStep),
		Attempts:       t.Attempts,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
		CompletedAt:    t.CompletedAt,
	}
	if t.Result != nil {
		resp.Result = &TransformationResultResponse{
			OutputAssetRef: t.Result.OutputAssetRef,
			ThumbnailRef:   t.Result.ThumbnailRef,
			Analysis:       t.Result.Analysis,
		}
	}
	if t.Error != nil {
		resp.Error = &TransformationErrorResponse{
			Code:      t.Error.Code,
			Message:   t.Error.Message,
			Retryable: t.Error.Retryable,
		}
	}
	return resp
}

// RegisterWebhookRequest defines the payload for registering a webhook
// subscriber.
type RegisterWebhookRequest struct {
	CallbackURL string   `json:"callbackUrl" validate:"required,url"`
	EventFilter []string `json:"eventFilter" validate:"omitempty,dive,min=1"`
	Secret      string   `json:"secret"      validate:"omitempty,min=16"`
}

// WebhookResponse represents a registered webhook subscriber. The secret
// is never echoed back.
type WebhookResponse struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	CallbackURL string    `json:"callbackUrl"`
	EventFilter []string  `json:"eventFilter"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
}

// webhookToResponse converts a domain.WebhookSubscriber to its DTO.
func webhookToResponse(s *domain.WebhookSubscriber) WebhookResponse {
	return WebhookResponse{
		ID:          s.ID.String(),
		OwnerID:     s.OwnerID.String(),
		CallbackURL: s.CallbackURL,
		EventFilter: s.EventFilter,
		Active:      s.Active,
		CreatedAt:   s.CreatedAt,
	}
}

// StyleResponse represents one entry of the style catalog.
type StyleResponse struct {
	Ref  string `json:"ref"`
	Name string `json:"name"`
}
