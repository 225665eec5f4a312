package services

import (
	"errors"
	"fmt"
)

// ValidationError is malformed user input. The caller re-prompts without advancing.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NotFoundError means the route or booking is absent. It drives an alternate path, not a crash.
type NotFoundError struct {
	Resource string
	ID       interface{}
}

func (e *NotFoundError) Error() string {
	if e.ID == nil {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s %v not found", e.Resource, e.ID)
}

// StorageError wraps a repository failure
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ExternalServiceError wraps a failure of the invoice provider or chat transport. Retryable.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// AuthorizationError is a non-admin invoking an admin operation
type AuthorizationError struct {
	UserID int64
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("user %d is not an admin", e.UserID)
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// IsValidationError reports whether err is a ValidationError
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is a NotFoundError
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsExternalServiceError reports whether err is an ExternalServiceError
func IsExternalServiceError(err error) bool {
	var target *ExternalServiceError
	return errors.As(err, &target)
}

// IsAuthorizationError reports whether err is an AuthorizationError
func IsAuthorizationError(err error) bool {
	var target *AuthorizationError
	return errors.As(err, &target)
}
