package gemini

import "errors"

// Error definitions for the gemini package.
var (
	// ErrInvalidConfig is returned when the transform configuration is
	// missing required values.
	ErrInvalidConfig = errors.New("invalid gemini configuration")

	// ErrContentBlocked is returned when the model refuses the request on
	// safety grounds. Retrying the same input cannot succeed.
	ErrContentBlocked = errors.New("content blocked by safety filters")

	// ErrInvalidResponse is returned when the API response carries no
	// usable image.
	ErrInvalidResponse = errors.New("invalid response from gemini")
)
