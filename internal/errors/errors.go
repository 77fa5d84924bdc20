package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	// ErrorTypeValidation marks malformed parameters caught at the API
	// boundary before any pipeline work.
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeProcessing marks decode/encode failures inside the
	// transformation pipeline.
	ErrorTypeProcessing ErrorType = "processing"
	// ErrorTypeResourceExhaustion marks low-memory conditions. Normally
	// absorbed by switching encode strategy rather than surfaced.
	ErrorTypeResourceExhaustion ErrorType = "resource_exhaustion"
	// ErrorTypeCacheBackend marks disk or distributed-tier I/O failures.
	// Never escapes the cache hierarchy; logged and downgraded to a miss.
	ErrorTypeCacheBackend ErrorType = "cache_backend"
	// ErrorTypeNetwork marks source-fetch failures.
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeInternal marks everything else.
	ErrorTypeInternal ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NewProcessingError creates a new processing error
func NewProcessingError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeProcessing,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Cause:      cause,
	}
}

// NewResourceExhaustionError creates a new resource exhaustion error
func NewResourceExhaustionError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeResourceExhaustion,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Cause:      cause,
	}
}

// NewCacheBackendError creates a new cache backend error
func NewCacheBackendError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeCacheBackend,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// NewNetworkError creates a new network error
func NewNetworkError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeNetwork,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// IsType checks if the error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
