package pipeline

import "errors"

// Pipeline error taxonomy. Collaborator failures fall into two classes:
// input errors, which no amount of retrying will fix, and transient
// errors, which a later attempt may survive. Anything not wrapped in
// ErrInvalidInput is treated as transient.
var (
	// ErrInvalidInput marks a non-retryable request problem: an unknown
	// style ref, a missing source asset, or a record that fails
	// validation. Wrapped around the underlying cause.
	ErrInvalidInput = errors.New("invalid transformation input")

	// ErrStyleNotFound is returned by StyleCatalog implementations for an
	// unknown style ref.
	ErrStyleNotFound = errors.New("style not found")

	// ErrAssetNotFound is returned by BlobStore implementations when a
	// ref resolves to nothing.
	ErrAssetNotFound = errors.New("asset not found")

	// ErrTransformFailed wraps transform collaborator failures.
	ErrTransformFailed = errors.New("transform call failed")
)

// IsRetryable classifies a processing error. Input errors are permanent;
// everything else (network failures, model errors, timeouts) is assumed
// transient and worth another attempt.
func IsRetryable(err error) bool {
	return !errors.Is(err, ErrInvalidInput)
}

// errorCode maps a processing error to the stable code recorded on the
// transformation and surfaced to API clients.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrStyleNotFound):
		return "style_not_found"
	case errors.Is(err, ErrAssetNotFound):
		return "asset_not_found"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrTransformFailed):
		return "transform_failed"
	default:
		return "internal_error"
	}
}
