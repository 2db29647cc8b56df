package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/promptgallery/gallery-backend/internal/domain"
	"github.com/promptgallery/gallery-backend/internal/middleware"
	"github.com/promptgallery/gallery-backend/internal/service"
	"github.com/rs/zerolog/log"
)

// ImageHandler handles image-related HTTP requests
type ImageHandler struct {
	imageService *service.ImageService
}

// NewImageHandler creates a new ImageHandler
func NewImageHandler(imageService *service.ImageService) *ImageHandler {
	return &ImageHandler{imageService: imageService}
}

// UploadImageResponse represents the upload response
type UploadImageResponse struct {
	URL string `json:"url"`
}

// UploadImage godoc
// @Summary Upload a prompt image
// @Description Store an image in the asset bucket and return its public URL
// @Tags images
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "JPEG or PNG image"
// @Success 201 {object} UploadImageResponse
// @Failure 400 {object} ProblemDetails
// @Failure 403 {object} ProblemDetails
// @Failure 413 {object} ProblemDetails
// @Failure 503 {object} ProblemDetails
// @Router /images [post]
func (h *ImageHandler) UploadImage(c echo.Context) error {
	if h.imageService == nil || !h.imageService.IsEnabled() {
		return NewServiceUnavailableError(c, "Image uploads are disabled (storage not configured)")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return NewValidationError(c, "No file provided", []ValidationError{
			{Field: "file", Message: "File is required"},
		})
	}
	if file.Size > h.imageService.MaxSize() {
		return NewPayloadTooLargeError(c, maxSizeMessage(h.imageService.MaxSize()))
	}

	src, err := file.Open()
	if err != nil {
		log.Error().Err(err).Msg("Failed to open uploaded file")
		return NewInternalError(c, "Failed to process file")
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, h.imageService.MaxSize()+1))
	if err != nil {
		log.Error().Err(err).Msg("Failed to read uploaded file")
		return NewInternalError(c, "Failed to read file")
	}

	url, err := h.imageService.Upload(c.Request().Context(), data, file.Filename)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrImageTooLarge):
			return NewPayloadTooLargeError(c, maxSizeMessage(h.imageService.MaxSize()))
		case errors.Is(err, service.ErrInvalidFormat):
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "file", Message: "Invalid format. Supported: JPEG, PNG"},
			})
		case errors.Is(err, service.ErrImageTooSmall):
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "file", Message: "Image too small. Minimum 50x50 pixels"},
			})
		case errors.Is(err, service.ErrInvalidImageData):
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "file", Message: "Invalid image data"},
			})
		default:
			log.Error().Err(err).Str("subject", middleware.GetAuth0ID(c)).Msg("Failed to upload image")
			return NewInternalError(c, "Failed to upload image")
		}
	}

	log.Info().
		Str("subject", middleware.GetAuth0ID(c)).
		Str("url", url).
		Msg("Image uploaded successfully")

	return c.JSON(http.StatusCreated, UploadImageResponse{URL: url})
}

// DeleteImage godoc
// @Summary Delete a prompt image
// @Description Remove an uploaded image and its variants. URLs outside the bucket are ignored.
// @Tags images
// @Security BearerAuth
// @Param url query string true "Public URL returned by upload"
// @Success 204
// @Failure 400 {object} ProblemDetails
// @Failure 403 {object} ProblemDetails
// @Failure 503 {object} ProblemDetails
// @Router /images [delete]
func (h *ImageHandler) DeleteImage(c echo.Context) error {
	if h.imageService == nil || !h.imageService.IsEnabled() {
		return NewServiceUnavailableError(c, "Image deletion is disabled (storage not configured)")
	}

	imageURL := c.QueryParam("url")
	if imageURL == "" {
		return NewValidationError(c, "Image URL required", []ValidationError{
			{Field: "url", Message: "URL is required"},
		})
	}

	if err := h.imageService.Delete(c.Request().Context(), imageURL); err != nil {
		if errors.Is(err, domain.ErrAssetDeleteFailed) {
			log.Warn().Err(err).Str("url", imageURL).Msg("Asset store rejected delete")
		} else {
			log.Error().Err(err).Str("url", imageURL).Msg("Failed to delete image")
		}
		return NewInternalError(c, "Failed to delete image")
	}

	log.Info().
		Str("subject", middleware.GetAuth0ID(c)).
		Str("url", imageURL).
		Msg("Image deleted successfully")

	return c.NoContent(http.StatusNoContent)
}

func maxSizeMessage(maxSize int64) string {
	return fmt.Sprintf("File too large. Maximum size is %dMB", maxSize/(1024*1024))
}
