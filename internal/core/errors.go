package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation ErrorCategory = "validation" // Invalid input
	ErrCatExecution  ErrorCategory = "execution"  // Backend returned a failure
	ErrCatTimeout    ErrorCategory = "timeout"    // Operation timed out
	ErrCatState      ErrorCategory = "state"      // Illegal session transition
	ErrCatNetwork    ErrorCategory = "network"    // Backend unreachable
	ErrCatNotFound   ErrorCategory = "not_found"  // Resource not found
	ErrCatInternal   ErrorCategory = "internal"   // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Cause    error
	Details  map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category: ErrCatValidation,
		Code:     code,
		Message:  message,
	}
}

// ErrExecution creates an execution error.
func ErrExecution(code, message string) *DomainError {
	return &DomainError{
		Category: ErrCatExecution,
		Code:     code,
		Message:  message,
	}
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *DomainError {
	return &DomainError{
		Category: ErrCatTimeout,
		Code:     "TIMEOUT",
		Message:  message,
	}
}

// ErrNetwork creates a network connectivity error.
func ErrNetwork(message string) *DomainError {
	return &DomainError{
		Category: ErrCatNetwork,
		Code:     CodeBackendUnreachable,
		Message:  message,
	}
}

// ErrState creates a state error.
func ErrState(code, message string) *DomainError {
	return &DomainError{
		Category: ErrCatState,
		Code:     code,
		Message:  message,
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) *DomainError {
	return &DomainError{
		Category: ErrCatNotFound,
		Code:     "NOT_FOUND",
		Message:  fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// ErrSessionNotFound reports an unknown session id.
func ErrSessionNotFound(id string) *DomainError {
	return &DomainError{
		Category: ErrCatNotFound,
		Code:     CodeSessionNotFound,
		Message:  "session not found: " + id,
	}
}

// GenerationError is returned by inference gateways when a single
// generation call fails. StatusCode is zero when no HTTP response was received.
type GenerationError struct {
	Message    string
	StatusCode int
	Cause      error
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("generation failed (status %d): %s", e.StatusCode, e.Message)
	}
	return "generation failed: " + e.Message
}

// Unwrap returns the underlying cause.
func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// NewGenerationError builds a GenerationError wrapped in a categorized DomainError.
func NewGenerationError(cat ErrorCategory, message string, status int, cause error) *DomainError {
	code := CodeGenerationFailed
	if cat == ErrCatNetwork {
		code = CodeBackendUnreachable
	}
	return &DomainError{
		Category: cat,
		Code:     code,
		Message:  message,
		Cause:    &GenerationError{Message: message, StatusCode: status, Cause: cause},
	}
}

// StatusCode extracts the HTTP status code carried by a generation error, if any.
func StatusCode(err error) int {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr.StatusCode
	}
	return 0
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// Predefined error codes
const (
	CodeSessionNotFound    = "SESSION_NOT_FOUND"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeGenerationFailed   = "GENERATION_FAILED"
	CodeBackendUnreachable = "BACKEND_UNREACHABLE"
	CodeGatewayUnreachable = "GATEWAY_UNREACHABLE"
	CodeStageFailed        = "STAGE_FAILED"

	// Validation error codes
	CodeEmptyQuery     = "EMPTY_QUERY"
	CodeQueryTooLong   = "QUERY_TOO_LONG"
	CodeNoAgents       = "NO_AGENTS"
	CodeTooManyAgents  = "TOO_MANY_AGENTS"
	CodeEmptyModel     = "EMPTY_MODEL"
	CodeInvalidConfig  = "INVALID_CONFIG"
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeParseFailed    = "PARSE_FAILED"
)

const (
	// MaxQueryLength is the maximum allowed query length.
	MaxQueryLength = 100000
	// MinAgents and MaxAgents bound the size of a council.
	MinAgents = 1
	MaxAgents = 5
)
