// Package errors provides a structured error type (StoreError) for
// category-based classification in the storage gateway and its HTTP adapter.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory represents the category of a StoreError for classification.
type ErrorCategory string

const (
	// User-facing input and access errors
	CategoryValidation ErrorCategory = "validation"
	CategoryAuth       ErrorCategory = "auth"
	CategoryForbidden  ErrorCategory = "forbidden"

	// Object state
	CategoryNotFound ErrorCategory = "notfound"

	// Resource limits
	CategoryPayload  ErrorCategory = "payload"
	CategoryCapacity ErrorCategory = "capacity"

	// Backend and infrastructure errors
	CategoryBackend  ErrorCategory = "backend"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is.
type ErrorSeverity string

const (
	SeverityError   ErrorSeverity = "error"
	SeverityWarning ErrorSeverity = "warning"
	SeverityInfo    ErrorSeverity = "info"
)

// ContextFields carries structured context for StoreError.
type ContextFields map[string]any

// StoreError is a structured error with category, severity, and context.
type StoreError struct {
	Category  ErrorCategory `json:"category"`
	Severity  ErrorSeverity `json:"severity"`
	Message   string        `json:"message"`
	Cause     error         `json:"cause,omitempty"`
	Retryable bool          `json:"retryable"`
	Context   ContextFields `json:"context,omitempty"`
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error.
func (e *StoreError) WithContext(key string, value any) *StoreError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new StoreError.
func New(category ErrorCategory, severity ErrorSeverity, message string) *StoreError {
	return &StoreError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new StoreError that wraps an existing error.
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *StoreError {
	return &StoreError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// AsStoreError extracts a StoreError from an error chain.
func AsStoreError(err error) (*StoreError, bool) {
	var se *StoreError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// CategoryOf returns the category of err, or CategoryInternal for
// unclassified errors.
func CategoryOf(err error) ErrorCategory {
	if se, ok := AsStoreError(err); ok {
		return se.Category
	}
	return CategoryInternal
}

// IsNotFound reports whether err is classified as a missing object.
func IsNotFound(err error) bool {
	return CategoryOf(err) == CategoryNotFound
}

// IsForbidden reports whether err is classified as an access violation.
func IsForbidden(err error) bool {
	return CategoryOf(err) == CategoryForbidden
}

// IsCapacity reports whether err is classified as a cache capacity failure.
func IsCapacity(err error) bool {
	return CategoryOf(err) == CategoryCapacity
}
