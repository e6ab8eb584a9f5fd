package shared

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the principal lacks the permission or ownership required.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation is matched by every ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrSelfDeletion occurs when a manager tries to delete their own account.
	ErrSelfDeletion = errors.New("you cannot delete your own account")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// ValidationError carries per-field messages for a rejected form.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError with a single field message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// Add records a message for field unless one is already present.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; exists {
		return
	}
	e.Fields[field] = message
}

// Empty reports whether no field failed.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

// Error implements error.
func (e *ValidationError) Error() string {
	if e.Empty() {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

// Is makes errors.Is(err, ErrValidation) true for validation errors.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// FieldErrors extracts per-field messages from err, or nil when err is not a ValidationError.
func FieldErrors(err error) map[string]string {
	var verr *ValidationError
	if errors.As(err, &verr) && verr != nil {
		return verr.Fields
	}
	return nil
}

// UserSafeMessage returns a message suitable for display to end users.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSelfDeletion):
		return "You cannot delete your own account!"
	case errors.Is(err, ErrForbidden):
		return "You are not allowed to perform this action."
	case errors.Is(err, ErrNotFound):
		return "The requested record does not exist."
	case errors.Is(err, ErrValidation):
		return "Please correct the highlighted fields."
	default:
		return "Something went wrong. Please try again."
	}
}
