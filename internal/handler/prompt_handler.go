package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/promptgallery/gallery-backend/internal/domain"
	"github.com/promptgallery/gallery-backend/internal/middleware"
	"github.com/promptgallery/gallery-backend/internal/service"
	"github.com/rs/zerolog/log"
)

// PromptHandler handles prompt-related HTTP requests
type PromptHandler struct {
	promptService *service.PromptService
}

// NewPromptHandler creates a new PromptHandler
func NewPromptHandler(promptService *service.PromptService) *PromptHandler {
	return &PromptHandler{promptService: promptService}
}

// ImageRequest references an image by URL
type ImageRequest struct {
	Source string `json:"source" enums:"external,asset"`
	URL    string `json:"url"`
}

// PromptRequest is the body of create and update requests
type PromptRequest struct {
	Body          string        `json:"body"`
	Categories    []string      `json:"categories"`
	ReferenceCode *string       `json:"referenceCode,omitempty"`
	Image         *ImageRequest `json:"image,omitempty"`
}

// ImageResponse represents a prompt image in API responses
type ImageResponse struct {
	Source string `json:"source"`
	URL    string `json:"url"`
}

// PromptResponse represents a prompt in API responses
type PromptResponse struct {
	ID            string         `json:"id"`
	Body          string         `json:"body"`
	Categories    []string       `json:"categories"`
	ReferenceCode *string        `json:"referenceCode,omitempty"`
	Image         *ImageResponse `json:"image,omitempty"`
	CreatedAt     string         `json:"createdAt"`
	UpdatedAt     string         `json:"updatedAt"`
}

// ListPrompts godoc
// @Summary List prompts
// @Description Every prompt, newest first
// @Tags prompts
// @Produce json
// @Success 200 {array} PromptResponse
// @Failure 500 {object} ProblemDetails
// @Router /prompts [get]
func (h *PromptHandler) ListPrompts(c echo.Context) error {
	prompts, err := h.promptService.ListPrompts(c.Request().Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list prompts")
		return NewInternalError(c, "Failed to list prompts")
	}

	response := make([]PromptResponse, len(prompts))
	for i, p := range prompts {
		response[i] = toPromptResponse(p)
	}
	return c.JSON(http.StatusOK, response)
}

// GetPrompt godoc
// @Summary Get a prompt
// @Tags prompts
// @Produce json
// @Param id path string true "Prompt ID"
// @Success 200 {object} PromptResponse
// @Failure 400 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Router /prompts/{id} [get]
func (h *PromptHandler) GetPrompt(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "Invalid prompt ID", nil)
	}

	prompt, err := h.promptService.GetPrompt(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrPromptNotFound) {
			return NewNotFoundError(c, "Prompt not found")
		}
		log.Error().Err(err).Str("prompt_id", id.String()).Msg("Failed to get prompt")
		return NewInternalError(c, "Failed to get prompt")
	}

	return c.JSON(http.StatusOK, toPromptResponse(prompt))
}

// CreatePrompt godoc
// @Summary Create a prompt
// @Tags prompts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body PromptRequest true "Prompt fields"
// @Success 201 {object} PromptResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Failure 403 {object} ProblemDetails
// @Router /prompts [post]
func (h *PromptHandler) CreatePrompt(c echo.Context) error {
	var req PromptRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	prompt, err := h.promptService.CreatePrompt(c.Request().Context(), req.fields())
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			return NewFieldValidationError(c, verr)
		}
		log.Error().Err(err).Str("subject", middleware.GetAuth0ID(c)).Msg("Failed to create prompt")
		return NewInternalError(c, "Failed to create prompt")
	}

	log.Info().Str("subject", middleware.GetAuth0ID(c)).Str("prompt_id", prompt.ID.String()).Msg("Prompt created")

	return c.JSON(http.StatusCreated, toPromptResponse(prompt))
}

// UpdatePrompt godoc
// @Summary Replace a prompt
// @Tags prompts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Prompt ID"
// @Param request body PromptRequest true "Prompt fields"
// @Success 200 {object} PromptResponse
// @Failure 400 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Router /prompts/{id} [put]
func (h *PromptHandler) UpdatePrompt(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "Invalid prompt ID", nil)
	}

	var req PromptRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	prompt, err := h.promptService.UpdatePrompt(c.Request().Context(), id, req.fields())
	if err != nil {
		var verr *domain.ValidationError
		switch {
		case errors.As(err, &verr):
			return NewFieldValidationError(c, verr)
		case errors.Is(err, domain.ErrPromptNotFound):
			return NewNotFoundError(c, "Prompt not found")
		}
		log.Error().Err(err).Str("prompt_id", id.String()).Msg("Failed to update prompt")
		return NewInternalError(c, "Failed to update prompt")
	}

	log.Info().Str("subject", middleware.GetAuth0ID(c)).Str("prompt_id", id.String()).Msg("Prompt updated")

	return c.JSON(http.StatusOK, toPromptResponse(prompt))
}

// DeletePrompt godoc
// @Summary Delete a prompt
// @Tags prompts
// @Security BearerAuth
// @Param id path string true "Prompt ID"
// @Success 204
// @Failure 404 {object} ProblemDetails
// @Router /prompts/{id} [delete]
func (h *PromptHandler) DeletePrompt(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return NewValidationError(c, "Invalid prompt ID", nil)
	}

	if err := h.promptService.DeletePrompt(c.Request().Context(), id); err != nil {
		if errors.Is(err, domain.ErrPromptNotFound) {
			return NewNotFoundError(c, "Prompt not found")
		}
		log.Error().Err(err).Str("prompt_id", id.String()).Msg("Failed to delete prompt")
		return NewInternalError(c, "Failed to delete prompt")
	}

	log.Info().Str("subject", middleware.GetAuth0ID(c)).Str("prompt_id", id.String()).Msg("Prompt deleted")

	return c.NoContent(http.StatusNoContent)
}

func (r PromptRequest) fields() domain.PromptFields {
	fields := domain.PromptFields{
		Body:          r.Body,
		Categories:    r.Categories,
		ReferenceCode: r.ReferenceCode,
	}
	if r.Image != nil {
		source := domain.ImageSource(r.Image.Source)
		if source == "" {
			source = domain.ImageSourceExternal
		}
		fields.Image = &domain.ImageRef{Source: source, URL: r.Image.URL}
	}
	return fields
}

func toPromptResponse(p *domain.Prompt) PromptResponse {
	resp := PromptResponse{
		ID:            p.ID.String(),
		Body:          p.Body,
		Categories:    p.Categories,
		ReferenceCode: p.ReferenceCode,
		CreatedAt:     p.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:     p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if resp.Categories == nil {
		resp.Categories = []string{}
	}
	if p.Image != nil {
		resp.Image = &ImageResponse{Source: string(p.Image.Source), URL: p.Image.URL}
	}
	return resp
}
