package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/promptgallery/gallery-backend/internal/domain"
)

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Status   int               `json:"status"`
	Detail   string            `json:"detail,omitempty"`
	Instance string            `json:"instance,omitempty"`
	Errors   []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error types
const (
	ErrorTypeValidation   = "https://prompt-gallery.app/errors/validation"
	ErrorTypeNotFound     = "https://prompt-gallery.app/errors/not-found"
	ErrorTypeUnauthorized = "https://prompt-gallery.app/errors/unauthorized"
	ErrorTypeForbidden    = "https://prompt-gallery.app/errors/forbidden"
	ErrorTypeTooLarge     = "https://prompt-gallery.app/errors/payload-too-large"
	ErrorTypeUnavailable  = "https://prompt-gallery.app/errors/service-unavailable"
	ErrorTypeInternal     = "https://prompt-gallery.app/errors/internal"
)

func problem(c echo.Context, status int, typ, title, detail string) error {
	return c.JSON(status, ProblemDetails{
		Type:     typ,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

// NewValidationError creates a validation error response
func NewValidationError(c echo.Context, detail string, errors []ValidationError) error {
	return c.JSON(http.StatusBadRequest, ProblemDetails{
		Type:     ErrorTypeValidation,
		Title:    "Validation Error",
		Status:   http.StatusBadRequest,
		Detail:   detail,
		Instance: c.Request().URL.Path,
		Errors:   errors,
	})
}

// NewFieldValidationError renders the field list of a domain validation error
func NewFieldValidationError(c echo.Context, verr *domain.ValidationError) error {
	fields := make([]ValidationError, len(verr.Fields))
	for i, f := range verr.Fields {
		fields[i] = ValidationError{Field: f.Field, Message: f.Message}
	}
	return NewValidationError(c, "Validation failed", fields)
}

// NewNotFoundError creates a not found error response
func NewNotFoundError(c echo.Context, detail string) error {
	return problem(c, http.StatusNotFound, ErrorTypeNotFound, "Not Found", detail)
}

// NewUnauthorizedError creates an unauthorized error response
func NewUnauthorizedError(c echo.Context, detail string) error {
	return problem(c, http.StatusUnauthorized, ErrorTypeUnauthorized, "Unauthorized", detail)
}

// NewForbiddenError creates a forbidden error response
func NewForbiddenError(c echo.Context, detail string) error {
	return problem(c, http.StatusForbidden, ErrorTypeForbidden, "Forbidden", detail)
}

// NewPayloadTooLargeError creates a 413 response
func NewPayloadTooLargeError(c echo.Context, detail string) error {
	return problem(c, http.StatusRequestEntityTooLarge, ErrorTypeTooLarge, "Payload Too Large", detail)
}

// NewServiceUnavailableError creates a 503 response
func NewServiceUnavailableError(c echo.Context, detail string) error {
	return problem(c, http.StatusServiceUnavailable, ErrorTypeUnavailable, "Service Unavailable", detail)
}

// NewInternalError creates an internal error response
func NewInternalError(c echo.Context, detail string) error {
	return problem(c, http.StatusInternalServerError, ErrorTypeInternal, "Internal Server Error", detail)
}
