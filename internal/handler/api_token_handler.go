package handler

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/promptgallery/gallery-backend/internal/domain"
	"github.com/promptgallery/gallery-backend/internal/middleware"
	"github.com/promptgallery/gallery-backend/internal/service"
	"github.com/rs/zerolog/log"
)

// APITokenHandler handles API token management requests
type APITokenHandler struct {
	apiTokenService *service.APITokenService
}

// NewAPITokenHandler creates a new APITokenHandler
func NewAPITokenHandler(apiTokenService *service.APITokenService) *APITokenHandler {
	return &APITokenHandler{apiTokenService: apiTokenService}
}

// CreateAPITokenRequest represents the create token request body
type CreateAPITokenRequest struct {
	Description string `json:"description"`
}

// CreateAPIToken godoc
// @Summary Create an API token
// @Description Issue a token for scripts and the CLI. Session auth only; the token is shown once.
// @Tags api-tokens
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateAPITokenRequest true "Token creation request"
// @Success 201 {object} domain.CreateAPITokenResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Failure 403 {object} ProblemDetails
// @Router /api-tokens [post]
func (h *APITokenHandler) CreateAPIToken(c echo.Context) error {
	user := middleware.GetUser(c)
	if user == nil {
		return NewUnauthorizedError(c, "Authentication required")
	}

	var req CreateAPITokenRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	result, err := h.apiTokenService.Create(c.Request().Context(), user, req.Description)
	if err != nil {
		var verr *domain.ValidationError
		switch {
		case errors.As(err, &verr):
			return NewFieldValidationError(c, verr)
		case errors.Is(err, domain.ErrTooManyAPITokens):
			return NewValidationError(c, "Maximum number of API tokens reached", nil)
		}
		log.Error().Err(err).Str("subject", user.Subject).Msg("Failed to create API token")
		return NewInternalError(c, "Failed to create API token")
	}

	return c.JSON(http.StatusCreated, result)
}

// GetAPITokens godoc
// @Summary List API tokens
// @Description Active tokens of the signed-in admin, without secrets
// @Tags api-tokens
// @Produce json
// @Security BearerAuth
// @Success 200 {array} domain.APITokenResponse
// @Failure 401 {object} ProblemDetails
// @Failure 500 {object} ProblemDetails
// @Router /api-tokens [get]
func (h *APITokenHandler) GetAPITokens(c echo.Context) error {
	subject := middleware.GetAuth0ID(c)
	if subject == "" {
		return NewUnauthorizedError(c, "Authentication required")
	}

	tokens, err := h.apiTokenService.List(c.Request().Context(), subject)
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("Failed to list API tokens")
		return NewInternalError(c, "Failed to get API tokens")
	}
	return c.JSON(http.StatusOK, tokens)
}

// RevokeAPIToken godoc
// @Summary Revoke an API token
// @Tags api-tokens
// @Produce json
// @Security BearerAuth
// @Param id path string true "Token ID (UUID)"
// @Success 204 "No Content"
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Router /api-tokens/{id} [delete]
func (h *APITokenHandler) RevokeAPIToken(c echo.Context) error {
	subject := middleware.GetAuth0ID(c)
	if subject == "" {
		return NewUnauthorizedError(c, "Authentication required")
	}

	tokenID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "Invalid token ID", nil)
	}

	if err := h.apiTokenService.Revoke(c.Request().Context(), subject, tokenID); err != nil {
		if errors.Is(err, domain.ErrAPITokenNotFound) {
			return NewNotFoundError(c, "API token not found")
		}
		log.Error().Err(err).Str("token_id", tokenID.String()).Msg("Failed to revoke API token")
		return NewInternalError(c, "Failed to revoke API token")
	}
	return c.NoContent(http.StatusNoContent)
}
