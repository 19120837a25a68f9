package services

import (
	"errors"
	"fmt"

	"github.com/almazom/koodo-llm/repositories"
	"github.com/almazom/koodo-llm/services/providers"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypePrecondition ErrorType = "precondition"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeExternal     ErrorType = "external"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

var (
	ErrConfigNotFound   = NewDomainError(ErrorTypeNotFound, "llm config not found", nil)
	ErrSummaryNotFound  = NewDomainError(ErrorTypeNotFound, "summary not found", nil)
	ErrProviderNotFound = NewDomainError(ErrorTypeNotFound, "provider not found", nil)

	ErrInvalidInput  = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrEmptyText     = NewDomainError(ErrorTypeValidation, "text cannot be empty", nil)
	ErrEmptyTheme    = NewDomainError(ErrorTypeValidation, "theme cannot be empty", nil)
	ErrInvalidConfig = NewDomainError(ErrorTypeValidation, "invalid llm configuration", nil)

	ErrUnauthorized = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrInvalidToken = NewDomainError(ErrorTypeUnauthorized, "invalid authentication token", nil)

	ErrCredentialMissing = NewDomainError(ErrorTypePrecondition, "provider credential not configured", nil)

	ErrInternal      = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrDatabaseError = NewDomainError(ErrorTypeInternal, "database error", nil)

	ErrProviderError = NewDomainError(ErrorTypeExternal, "LLM provider error", nil)
)

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrorTypeNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsExternalError checks if an error is an external provider error
func IsExternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeExternal
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapExternal wraps an error as an external provider error
func WrapExternal(message string, err error) error {
	return NewDomainError(ErrorTypeExternal, message, err)
}

// FromRepositoryError turns a repository failure into a domain error.
// notFound is returned (wrapping err) when the record does not exist.
func FromRepositoryError(err error, notFound *DomainError) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repositories.ErrNotFound) {
		return NewDomainError(notFound.Type, notFound.Message, err)
	}
	return WrapInternal(ErrDatabaseError.Message, err)
}

// FromProviderError classifies an orchestration failure.
// The original error stays reachable through Unwrap.
func FromProviderError(err error) error {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return err
	}

	switch {
	case errors.Is(err, providers.ErrProviderNotFound):
		return NewDomainError(ErrorTypeNotFound, ErrProviderNotFound.Message, err)
	case errors.Is(err, providers.ErrCredentialMissing):
		return NewDomainError(ErrorTypePrecondition, ErrCredentialMissing.Message, err)
	case errors.Is(err, providers.ErrUpstream), errors.Is(err, providers.ErrMalformedResponse):
		domainErr := NewDomainError(ErrorTypeExternal, ErrProviderError.Message, err)
		var provErr *providers.ProviderError
		if errors.As(err, &provErr) {
			domainErr.WithDetail("provider", provErr.Provider)
			domainErr.WithDetail("kind", string(provErr.Kind))
		}
		return domainErr
	default:
		return WrapInternal("generation failed", err)
	}
}
