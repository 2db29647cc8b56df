package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors
var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrPromptNotFound     = errors.New("prompt not found")
	ErrValidation         = errors.New("validation failed")
	ErrAssetUploadFailed  = errors.New("asset upload failed")
	ErrAssetDeleteFailed  = errors.New("asset delete failed")
	ErrAssetStoreDisabled = errors.New("asset store not configured")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrAuthRequired       = errors.New("sign-in required")
	ErrAuthFailed         = errors.New("authentication failed")
	ErrImportUnsupported  = errors.New("import is only available in local mode")
)

// FieldError describes one failed required-field check
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when user input fails required-field checks.
// It matches ErrValidation with errors.Is.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Add appends a field error
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// HasField reports whether a field failed
func (e *ValidationError) HasField(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// OrNil returns nil when no field failed
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// BackendError is any persistence-layer failure reported by a remote store.
// It matches ErrBackendUnavailable with errors.Is.
type BackendError struct {
	Op      string
	Message string
	Status  int
	Err     error
}

func (e *BackendError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("backend error: %s", msg)
	}
	return fmt.Sprintf("backend error: %s: %s", e.Op, msg)
}

func (e *BackendError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrBackendUnavailable, e.Err}
	}
	return []error{ErrBackendUnavailable}
}

// NewBackendError wraps err as a BackendError for op
func NewBackendError(op string, err error) *BackendError {
	be := &BackendError{Op: op, Err: err}
	if err != nil {
		be.Message = err.Error()
	}
	return be
}

// AuthError reports a failed sign-in or sign-out.
// It matches ErrAuthFailed with errors.Is.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	if e.Reason == "" {
		return ErrAuthFailed.Error()
	}
	return ErrAuthFailed.Error() + ": " + e.Reason
}

func (e *AuthError) Unwrap() error {
	return ErrAuthFailed
}
