package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrorType defines distinct categories for errors originating from vodforge components.
type ErrorType string

const (
	// InvalidInputError represents errors caused by unusable job input (bad probe
	// dimensions, malformed input references). Always fatal: the job never starts.
	InvalidInputError ErrorType = "invalid_input_error"
	// ProbeError represents failures inspecting the remote source metadata.
	// Fatal: without metadata there is no plan.
	ProbeError ErrorType = "probe_error"
	// EncodeError represents failures of the encoder subprocess. Carries a
	// transient flag: source connectivity problems are retryable, malformed
	// input or encoder crashes are not.
	EncodeError ErrorType = "encode_error"
	// UploadError represents failures writing artifacts to object storage.
	// Always treated as transient.
	UploadError ErrorType = "upload_error"
	// TimeoutError represents a job exceeding its processing deadline.
	// Classified like a fatal error.
	TimeoutError ErrorType = "timeout_error"
)

// StructuredError represents a detailed error originating from vodforge operations.
// It includes a type, message, optional details, timestamp, a specific error code,
// and whether the failure is transient (safe to retry within the same variant).
// It implements the standard Go `error` interface.
type StructuredError struct {
	// Type categorizes the error (e.g., ProbeError, EncodeError).
	Type ErrorType `json:"type"`
	// Message provides a concise, human-readable description of the error.
	Message string `json:"message"`
	// Details offers additional context or the underlying error message, if available.
	Details string `json:"details,omitempty"`
	// Timestamp marks when the error occurred in RFC3339 format.
	Timestamp string `json:"timestamp"`
	// Code provides a specific integer code unique to the error source within its type.
	Code int `json:"code"`
	// Transient marks the error as retryable with backoff.
	Transient bool `json:"transient,omitempty"`
}

// Error implements the standard `error` interface for StructuredError.
// It returns a formatted string including the error type, message, and details.
func (e *StructuredError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Message, e.Details)
}

// JSON returns the StructuredError serialized as a JSON string.
// Returns an empty string and an error if marshalling fails.
func (e *StructuredError) JSON() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// New creates a new StructuredError instance.
// It automatically sets the Timestamp to the current time.
func New(errorType ErrorType, message, details string, code int) *StructuredError {
	return &StructuredError{
		Type:      errorType,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().Format(time.RFC3339),
		Code:      code,
	}
}

// NewTransient creates a StructuredError marked as retryable.
func NewTransient(errorType ErrorType, message, details string, code int) *StructuredError {
	e := New(errorType, message, details, code)
	e.Transient = true
	return e
}

// Wrap creates a new StructuredError, using the message from an existing standard
// Go error as the Details field.
// If the input error `err` is nil, Details will be empty.
func Wrap(err error, errorType ErrorType, message string, code int) *StructuredError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return New(errorType, message, details, code)
}

// WrapTransient wraps an underlying error into a retryable StructuredError.
func WrapTransient(err error, errorType ErrorType, message string, code int) *StructuredError {
	e := Wrap(err, errorType, message, code)
	e.Transient = true
	return e
}

// Retryable reports whether err is a StructuredError marked transient.
// Unknown error values are never retryable.
func Retryable(err error) bool {
	var se *StructuredError
	if errors.As(err, &se) {
		return se.Transient
	}
	return false
}

// IsType reports whether err is a StructuredError of the given type.
func IsType(err error, errorType ErrorType) bool {
	var se *StructuredError
	if errors.As(err, &se) {
		return se.Type == errorType
	}
	return false
}

// TypeOf extracts the ErrorType from err, or an empty string when err is not
// a StructuredError.
func TypeOf(err error) ErrorType {
	var se *StructuredError
	if errors.As(err, &se) {
		return se.Type
	}
	return ""
}
