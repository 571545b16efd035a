package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors returned by repositories and services.
var (
	ErrNotFound        = errors.New("not found")
	ErrIssueResolved   = errors.New("issue already resolved")
	ErrRuleNotFound    = errors.New("rule not found")
	ErrInvalidSeverity = errors.New("invalid severity")
	ErrInvalidState    = errors.New("invalid issue state")
)

// ServiceError represents a standardized error response
type ServiceError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrInvalidInput   = "INVALID_INPUT"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeRule       = "RULE_NOT_FOUND"
	ErrConflict       = "CONFLICT"
	ErrDatabaseError  = "DATABASE_ERROR"
	ErrInternalServer = "INTERNAL_SERVER_ERROR"
	ErrRateLimit      = "RATE_LIMIT_EXCEEDED"
)

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewServiceError creates a new ServiceError with timestamp
func NewServiceError(code, message, details, requestID string) *ServiceError {
	return &ServiceError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// ErrorCode maps an error returned by the service layer onto one of the
// error codes above.
func ErrorCode(err error) string {
	var svcErr *ServiceError
	var valErr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &svcErr):
		return svcErr.Code
	case errors.As(err, &valErr),
		errors.Is(err, ErrInvalidSeverity),
		errors.Is(err, ErrInvalidState):
		return ErrInvalidInput
	case errors.Is(err, ErrRuleNotFound):
		return ErrCodeRule
	case errors.Is(err, ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, ErrIssueResolved):
		return ErrConflict
	default:
		return ErrInternalServer
	}
}
