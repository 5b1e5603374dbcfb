package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	ErrRootNotFound          = errors.New("source root not found")
	ErrRootNotDirectory      = errors.New("source root is not a directory")
	ErrRegistryClosed        = errors.New("registry is closed")
	ErrUnknownRegistryDriver = errors.New("unknown registry driver")
	ErrHubNotRunning         = errors.New("event hub is not running")
	ErrSubscriberClosed      = errors.New("subscriber is closed")
)

// Error codes for API responses.
const (
	ErrCodeRefreshFailed = "REFRESH_FAILED"
	ErrCodeRegistryError = "REGISTRY_ERROR"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// RegistryError represents an error from a source registry operation.
type RegistryError struct {
	Op   string // Operation that failed
	Path string // Entry path, if the operation targeted one
	Err  error  // Underlying error
}

func (e *RegistryError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("registry %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("registry %s: %v", e.Op, e.Err)
}

func (e *RegistryError) Unwrap() error {
	return e.Err
}

// NewRegistryError creates a new RegistryError.
func NewRegistryError(op, path string, err error) *RegistryError {
	return &RegistryError{
		Op:   op,
		Path: path,
		Err:  err,
	}
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
