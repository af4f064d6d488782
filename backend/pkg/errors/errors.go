package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeNotFound represents a referenced entity or relation that does not exist
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeValidation represents malformed input or out-of-range arguments
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeBackend represents an unreachable similarity index or graph database
	ErrorTypeBackend ErrorType = "backend_unavailable"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeEmbedding represents embedding service failures
	ErrorTypeEmbedding ErrorType = "embedding"
	// ErrorTypeStore represents canonical record store failures
	ErrorTypeStore ErrorType = "store"
	// ErrorTypeIndex represents similarity index failures after initialization
	ErrorTypeIndex ErrorType = "index"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// Kind returns the category of the error
func (e *BaseError) Kind() ErrorType {
	return e.Type
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Not Found Errors

// ErrEntityNotFound is returned when a referenced entity name or id is absent
type ErrEntityNotFound struct {
	*BaseError
	Name string
}

func NewEntityNotFound(name string) *ErrEntityNotFound {
	return &ErrEntityNotFound{
		BaseError: NewBaseError(ErrorTypeNotFound, fmt.Sprintf("entity not found: %s", name), nil),
		Name:      name,
	}
}

// Validation Errors

// ErrValidation is returned for malformed shapes and out-of-range arguments
type ErrValidation struct {
	*BaseError
	Field  string
	Reason string
}

func NewValidation(field, reason string) *ErrValidation {
	return &ErrValidation{
		BaseError: NewBaseError(ErrorTypeValidation, fmt.Sprintf("invalid %s: %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// Backend Errors

// ErrBackendUnavailable is returned when a backend cannot be reached after the
// initialization retry budget is spent
type ErrBackendUnavailable struct {
	*BaseError
	Backend  string
	Attempts int
}

func NewBackendUnavailable(backend string, attempts int, err error) *ErrBackendUnavailable {
	return &ErrBackendUnavailable{
		BaseError: NewBaseError(ErrorTypeBackend, fmt.Sprintf("%s unavailable after %d attempts", backend, attempts), err),
		Backend:   backend,
		Attempts:  attempts,
	}
}

// Store and Index Errors

// ErrStoreOperationFailed is returned when a record store read or write fails
type ErrStoreOperationFailed struct {
	*BaseError
	Operation string
}

func NewStoreOperationFailed(operation string, err error) *ErrStoreOperationFailed {
	return &ErrStoreOperationFailed{
		BaseError: NewBaseError(ErrorTypeStore, fmt.Sprintf("store operation failed: %s", operation), err),
		Operation: operation,
	}
}

// ErrIndexOperationFailed is returned when a similarity index call fails
type ErrIndexOperationFailed struct {
	*BaseError
	Operation string
}

func NewIndexOperationFailed(operation string, err error) *ErrIndexOperationFailed {
	return &ErrIndexOperationFailed{
		BaseError: NewBaseError(ErrorTypeIndex, fmt.Sprintf("index operation failed: %s", operation), err),
		Operation: operation,
	}
}

// ErrEmbeddingFailed is returned when the embedding service fails
type ErrEmbeddingFailed struct {
	*BaseError
	Model string
}

func NewEmbeddingFailed(model string, err error) *ErrEmbeddingFailed {
	return &ErrEmbeddingFailed{
		BaseError: NewBaseError(ErrorTypeEmbedding, fmt.Sprintf("embedding failed for model %s", model), err),
		Model:     model,
	}
}

// Context Errors

// ErrContextCancelled is returned when context is cancelled
type ErrContextCancelled struct {
	*BaseError
	Operation string
}

func NewContextCancelled(operation string, err error) *ErrContextCancelled {
	return &ErrContextCancelled{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context cancelled: %s", operation), err),
		Operation: operation,
	}
}

// Config Errors

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// ErrDimensionMismatch is returned when the index collection was created for a
// different vector size than the configured embedding model produces
type ErrDimensionMismatch struct {
	*BaseError
	Collection string
	Existing   int
	Configured int
}

func NewDimensionMismatch(collection string, existing, configured int) *ErrDimensionMismatch {
	return &ErrDimensionMismatch{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf(
			"collection %s has dimension %d but embedding model produces %d; recreation required",
			collection, existing, configured), nil),
		Collection: collection,
		Existing:   existing,
		Configured: configured,
	}
}

// Helper functions

// TypeOf returns the category of the first BaseError in the chain, or "" when
// err carries none.
func TypeOf(err error) ErrorType {
	var kinded interface{ Kind() ErrorType }
	if stderrors.As(err, &kinded) {
		return kinded.Kind()
	}
	return ""
}

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	return err != nil && TypeOf(err) == errType
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool {
	return IsErrorType(err, ErrorTypeNotFound)
}

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool {
	return IsErrorType(err, ErrorTypeValidation)
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeBackend, ErrorTypeIndex, ErrorTypeEmbedding:
		return true
	default:
		return false
	}
}
