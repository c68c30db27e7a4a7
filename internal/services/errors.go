package services

import (
	"errors"
	"fmt"

	apperrors "github.com/proctorhub/session-service/internal/errors"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Generic errors
	ErrNotFound         = errors.New("resource not found")
	ErrValidationFailed = errors.New("validation failed")
	ErrInternalError    = errors.New("internal server error")
	ErrBadRequest       = errors.New("bad request")
	ErrConflict         = errors.New("resource conflict")

	// Session specific errors
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionNotActive     = errors.New("session is not active")
	ErrSessionAlreadyEnded  = errors.New("session already reached a terminal status")
	ErrSessionInvalidStatus = errors.New("invalid session status transition")
	ErrSessionIDTaken       = errors.New("session id already exists")

	// Violation specific errors
	ErrViolationNotFound        = errors.New("violation not found")
	ErrViolationAlreadyResolved = errors.New("violation already resolved")

	// Persistence errors
	ErrScoreRecomputeFailed = errors.New("score recomputation failed after retries")
)

// ===== CUSTOM ERROR TYPES =====

// Use shared validation errors from errors package
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

// TransientPersistenceError marks a storage failure that is safe to retry.
type TransientPersistenceError struct {
	Op  string
	Err error
}

func (te *TransientPersistenceError) Error() string {
	return fmt.Sprintf("transient persistence failure during %s: %v", te.Op, te.Err)
}

func (te *TransientPersistenceError) Unwrap() error {
	return te.Err
}

// ===== ERROR HELPERS =====

// NewValidationError creates a new validation error using the shared type
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return apperrors.NewValidationError(field, message, value)
}

func NewTransientPersistenceError(op string, err error) *TransientPersistenceError {
	return &TransientPersistenceError{Op: op, Err: err}
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	var ves ValidationErrors
	return errors.As(err, &ve) || errors.As(err, &ves)
}
