package apperr

import (
	"errors"
	"fmt"
)

// Error kinds
const (
	// KindConfig is returned when signing configuration is missing or unusable
	KindConfig = "config"

	// KindFormat is returned when PEM or DER material is malformed
	KindFormat = "format"

	// KindValidation is returned when the incoming request is rejected
	KindValidation = "validation"

	// KindUpstream is returned when the weather API answers with a non-2xx status
	KindUpstream = "upstream"

	// KindNetwork is returned when the weather API cannot be reached
	KindNetwork = "network"
)

// Error represents a classified failure inside the proxy
type Error struct {
	// Kind is one of the Kind* constants
	Kind string

	// Status carries the upstream HTTP status for KindUpstream, zero otherwise
	Status int

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new classified error
func New(kind, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError creates a new config error
func NewConfigError(message string, cause error) *Error {
	return New(KindConfig, message, cause)
}

// NewFormatError creates a new format error
func NewFormatError(message string, cause error) *Error {
	return New(KindFormat, message, cause)
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *Error {
	return New(KindValidation, message, cause)
}

// NewUpstreamError creates a new upstream error carrying the upstream status
func NewUpstreamError(status int, message string) *Error {
	return &Error{Kind: KindUpstream, Status: status, Message: message}
}

// NewNetworkError creates a new network error
func NewNetworkError(message string, cause error) *Error {
	return New(KindNetwork, message, cause)
}

// As unwraps err into *Error, following wrapped chains
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or the empty string for unclassified errors
func KindOf(err error) string {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

// IsConfig checks if the error is a config error
func IsConfig(err error) bool {
	return KindOf(err) == KindConfig
}

// IsFormat checks if the error is a format error
func IsFormat(err error) bool {
	return KindOf(err) == KindFormat
}

// IsValidation checks if the error is a validation error
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}

// IsUpstream checks if the error is an upstream error
func IsUpstream(err error) bool {
	return KindOf(err) == KindUpstream
}

// IsNetwork checks if the error is a network error
func IsNetwork(err error) bool {
	return KindOf(err) == KindNetwork
}
