package pipeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/artivo/restyle-api/internal/domain"
)

// Image is raw image bytes plus their MIME type.
type Image struct {
	Data     []byte
	MIMEType string
}

// Style describes one entry from the style catalog: the prompt fed to the
// transform model plus display metadata.
type Style struct {
	Ref    string
	Name   string
	Prompt string
}

// TransformRequest is the input to one transform call.
type TransformRequest struct {
	Source  Image
	Style   *Style
	Quality domain.Quality
}

// TransformOutput is the result of one transform call: the styled image
// plus the model's textual analysis of what it did.
type TransformOutput struct {
	Result   Image
	Analysis string
}

// BlobStore abstracts binary asset storage. Refs are opaque storage keys;
// the pipeline never interprets them.
type BlobStore interface {
	// Upload stores data under the given ref, overwriting any previous
	// content.
	Upload(ctx context.Context, ref string, img Image) error

	// Download retrieves the content stored under ref.
	// Returns ErrAssetNotFound if nothing is stored there.
	Download(ctx context.Context, ref string) (Image, error)
}

// Transformer applies a style to a source image. Implementations are
// expected to honor context cancellation and deadlines.
type Transformer interface {
	Transform(ctx context.Context, req TransformRequest) (*TransformOutput, error)
}

// StyleCatalog resolves style references to their definitions.
type StyleCatalog interface {
	// GetStyle returns the style for the given ref.
	// Returns ErrStyleNotFound if the ref is unknown.
	GetStyle(ctx context.Context, ref string) (*Style, error)
}

// UsageRecorder tracks per-owner consumption for billing. Failures here
// never fail the transformation; they are logged and dropped.
type UsageRecorder interface {
	IncrementUsage(ctx context.Context, ownerID uuid.UUID) error
}
