package errors

import (
	"errors"
	"fmt"
)

// ErrorCode classifies ingestion and retrieval failures. Callers branch on
// the code, never on the message text.
type ErrorCode string

const (
	// ErrCodeValidation indicates bad input rejected before any external call.
	ErrCodeValidation ErrorCode = "VALIDATION"
	// ErrCodeUnsupportedFileType indicates the mimetype/extension is not ingestible.
	ErrCodeUnsupportedFileType ErrorCode = "UNSUPPORTED_FILE_TYPE"
	// ErrCodeExtractionFailed indicates text extraction failed for this document.
	ErrCodeExtractionFailed ErrorCode = "EXTRACTION_FAILED"
	// ErrCodeEmbeddingUnavailable indicates the embedding provider call failed.
	// Recoverable: affected chunks fall back to a degraded vector.
	ErrCodeEmbeddingUnavailable ErrorCode = "EMBEDDING_UNAVAILABLE"
	// ErrCodePersistenceFailed indicates a storage write failed and the
	// transaction was rolled back. Nothing was created; safe to retry.
	ErrCodePersistenceFailed ErrorCode = "PERSISTENCE_FAILED"
	// ErrCodeNotFound indicates an unknown owner or document on read/delete.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeDimensionMismatch indicates query and stored vector lengths disagree.
	ErrCodeDimensionMismatch ErrorCode = "DIMENSION_MISMATCH"
)

// PipelineError is a structured error carrying an explicit code.
type PipelineError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Convenience constructors for common error types.

// Validation creates a validation error.
func Validation(msg string) *PipelineError {
	return &PipelineError{Code: ErrCodeValidation, Message: msg}
}

// UnsupportedFileType creates an unsupported file type error.
func UnsupportedFileType(mimeType string) *PipelineError {
	return &PipelineError{
		Code:    ErrCodeUnsupportedFileType,
		Message: fmt.Sprintf("unsupported file type: %s", mimeType),
	}
}

// ExtractionFailed creates an extraction failed error.
func ExtractionFailed(msg string, cause error) *PipelineError {
	return &PipelineError{Code: ErrCodeExtractionFailed, Message: msg, Cause: cause}
}

// EmbeddingUnavailable creates an embedding unavailable error.
func EmbeddingUnavailable(msg string, cause error) *PipelineError {
	return &PipelineError{Code: ErrCodeEmbeddingUnavailable, Message: msg, Cause: cause}
}

// PersistenceFailed creates a persistence failed error.
func PersistenceFailed(msg string, cause error) *PipelineError {
	return &PipelineError{Code: ErrCodePersistenceFailed, Message: msg, Cause: cause}
}

// NotFound creates a not found error.
func NotFound(msg string) *PipelineError {
	return &PipelineError{Code: ErrCodeNotFound, Message: msg}
}

// DimensionMismatch creates a dimension mismatch error.
func DimensionMismatch(want, got int) *PipelineError {
	return &PipelineError{
		Code:    ErrCodeDimensionMismatch,
		Message: fmt.Sprintf("vector dimension mismatch: want %d, got %d", want, got),
	}
}

// IsCode checks if an error (or anything it wraps) carries a specific code.
func IsCode(err error, code ErrorCode) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}

// CodeOf extracts the error code from any error.
// Returns the provided default code if the error is not a PipelineError.
func CodeOf(err error, defaultCode ErrorCode) ErrorCode {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return defaultCode
}
