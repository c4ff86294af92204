//go:build !test_without_external_deps
// +build !test_without_external_deps

package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/artivo/restyle-api/internal/config"
	"github.com/artivo/restyle-api/internal/domain"
	"github.com/artivo/restyle-api/internal/pipeline"
)

// Transformer implements the pipeline.Transformer interface using Google's
// Gemini API to restyle images.
type Transformer struct {
	// logger is used for structured logging
	logger *slog.Logger

	// client is the Gemini API client for making requests
	client *genai.Client

	// model is the name of the Gemini model to use
	model string
}

// NewTransformer creates a new Transformer with the provided dependencies.
func NewTransformer(ctx context.Context, logger *slog.Logger, cfg config.TransformConfig) (*Transformer, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrInvalidConfig, err)
	}

	return &Transformer{
		logger: logger.With("component", "gemini_transformer"),
		client: client,
		model:  cfg.ModelName,
	}, nil
}

// Transform sends the source image and style prompt to the model and
// returns the styled image plus the model's analysis text. Transient API
// failures are returned unwrapped so the caller's retry policy applies;
// safety blocks are classified as non-retryable input errors.
func (g *Transformer) Transform(ctx context.Context, req pipeline.TransformRequest) (*pipeline.TransformOutput, error) {
	if req.Style == nil {
		return nil, fmt.Errorf("%w: style cannot be nil", pipeline.ErrInvalidInput)
	}
	if len(req.Source.Data) == 0 {
		return nil, fmt.Errorf("%w: source image cannot be empty", pipeline.ErrInvalidInput)
	}

	prompt := buildPrompt(req.Style, req.Quality)
	g.logger.DebugContext(ctx, "calling gemini",
		"model", g.model,
		"style", req.Style.Ref,
		"quality", req.Quality,
		"source_bytes", len(req.Source.Data))

	content := &genai.Content{
		Parts: []*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(req.Source.Data, req.Source.MIMEType),
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{content}, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini call failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("%w: no content generated", ErrInvalidResponse)
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return nil, fmt.Errorf("%w: %w", pipeline.ErrInvalidInput, ErrContentBlocked)
	}

	output := &pipeline.TransformOutput{}
	for _, part := range resp.Candidates[0].Content.Parts {
		switch {
		case part.Text != "":
			output.Analysis += part.Text
		case part.InlineData != nil:
			output.Result = pipeline.Image{Data: part.InlineData.Data, MIMEType: part.InlineData.MIMEType}
		}
	}
	if len(output.Result.Data) == 0 {
		return nil, fmt.Errorf("%w: response carried no image", ErrInvalidResponse)
	}

	g.logger.DebugContext(ctx, "gemini call successful",
		"result_bytes", len(output.Result.Data),
		"analysis_length", len(output.Analysis))
	return output, nil
}

// qualityDirectives maps the requested quality to rendering instructions
// appended to the style prompt.
var qualityDirectives = map[domain.Quality]string{
	domain.QualityStandard: "Render at standard fidelity.",
	domain.QualityHigh:     "Render at high fidelity, preserving fine detail.",
	domain.QualityUltra:    "Render at maximum fidelity, preserving fine detail and texture.",
}

// buildPrompt composes the instruction sent alongside the source image.
func buildPrompt(style *pipeline.Style, quality domain.Quality) string {
	directive, ok := qualityDirectives[quality]
	if !ok {
		directive = qualityDirectives[domain.QualityStandard]
	}
	return fmt.Sprintf(
		"Restyle the attached image. %s %s Return the restyled image followed by a short description of the changes applied.",
		style.Prompt, directive,
	)
}
