// Package boterrors provides sentinel and custom error types for the bot pipeline.
package boterrors

// Encoding failure reasons.
const (
	ReasonDimensionMismatch = "dimension_mismatch"
	ReasonProviderError     = "provider_error"
)

// ErrEncoding represents a failure to turn text into an embedding vector.
// Use for provider errors, malformed responses, and dimension mismatches.
var ErrEncoding = &EncodingError{}

// EncodingError is a sentinel error for embedding generation failures.
type EncodingError struct {
	Reason string // dimension_mismatch or provider_error
	Detail string
}

// NewEncodingError creates an EncodingError with a reason and detail.
func NewEncodingError(reason, detail string) *EncodingError {
	return &EncodingError{Reason: reason, Detail: detail}
}

// Error implements the error interface.
func (e *EncodingError) Error() string {
	if e.Reason != "" && e.Detail != "" {
		return "encoding failed (" + e.Reason + "): " + e.Detail
	}

	if e.Reason != "" {
		return "encoding failed: " + e.Reason
	}

	return "encoding failed"
}

// Is implements the error interface for error comparison.
func (e *EncodingError) Is(target error) bool {
	_, ok := target.(*EncodingError)

	return ok
}

// ErrGeneration represents a failure to produce an answer from the completion provider.
var ErrGeneration = &GenerationError{}

// GenerationError is a sentinel error for answer generation failures.
type GenerationError struct {
	Message string
}

// NewGenerationError creates a GenerationError with a custom message.
func NewGenerationError(message string) *GenerationError {
	return &GenerationError{Message: message}
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "answer generation failed"
}

// Is implements the error interface for error comparison.
func (e *GenerationError) Is(target error) bool {
	_, ok := target.(*GenerationError)

	return ok
}
