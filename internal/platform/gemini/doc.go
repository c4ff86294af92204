// Package gemini provides an implementation of the pipeline.Transformer
// interface that uses Google's Gemini API to apply styles to images.
//
// This package is an infrastructure adapter: it translates between the
// pipeline's transform request and the Gemini API without exposing the
// external service's details to the core application.
//
// Key components:
//
// 1. Transformer:
//   - Implements the pipeline.Transformer interface
//   - Handles communication with the Gemini API
//   - Extracts the styled image and analysis from the response
//
// 2. Prompt Construction:
//   - Builds the style prompt from the catalog entry and requested quality
//
// 3. Error Handling:
//   - Classifies safety blocks as non-retryable input errors
//   - Leaves transport and model failures transient so the pipeline's
//     queue-level retry policy governs them
package gemini
