package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/promptgallery/gallery-backend/internal/domain"
	"github.com/promptgallery/gallery-backend/internal/metrics"
	"github.com/promptgallery/gallery-backend/internal/repository/storage"
	"github.com/rs/zerolog/log"
)

const (
	MinImageWidth  = 50
	MinImageHeight = 50
	ThumbnailWidth = 400
	DisplayWidth   = 1600
	JPEGQuality    = 85
)

var (
	ErrImageTooLarge             = errors.New("image file is too large")
	ErrInvalidFormat             = errors.New("invalid format. Supported: JPEG, PNG")
	ErrImageTooSmall             = errors.New("image too small. Minimum 50x50 pixels")
	ErrInvalidImageData          = errors.New("invalid image data")
	ErrImageStorageNotConfigured = errors.New("image storage not configured")
)

// AllowedExtensions maps extensions to content types
var AllowedExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// imageVariants are generated for every upload. The display variant's URL
// is the one stored on the prompt.
var imageVariants = []struct {
	name     string
	maxWidth int
}{
	{"display", DisplayWidth},
	{"thumb", ThumbnailWidth},
}

// ImageService handles image processing and storage
type ImageService struct {
	storage storage.ImageRepository
	maxSize int64
}

// NewImageService creates a new ImageService. A nil repository disables uploads.
func NewImageService(storage storage.ImageRepository, maxSize int64) *ImageService {
	if maxSize <= 0 {
		maxSize = 10 * 1024 * 1024
	}
	return &ImageService{storage: storage, maxSize: maxSize}
}

// IsEnabled indicates whether uploads/deletes are supported (storage configured).
func (s *ImageService) IsEnabled() bool {
	return s != nil && s.storage != nil
}

// MaxSize is the largest accepted upload in bytes
func (s *ImageService) MaxSize() int64 {
	return s.maxSize
}

// ValidateImage validates image format and size
func (s *ImageService) ValidateImage(data []byte, filename string) error {
	_, err := s.validateAndDecode(data, filename)
	return err
}

func (s *ImageService) validateAndDecode(data []byte, filename string) (image.Image, error) {
	if int64(len(data)) > s.maxSize {
		return nil, fmt.Errorf("%w: maximum is %dMB", ErrImageTooLarge, s.maxSize/(1024*1024))
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := AllowedExtensions[ext]; !ok {
		return nil, ErrInvalidFormat
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, ErrInvalidImageData
	}

	bounds := img.Bounds()
	if bounds.Dx() < MinImageWidth || bounds.Dy() < MinImageHeight {
		return nil, ErrImageTooSmall
	}

	return img, nil
}

// Upload validates an image, stores its variants and returns the display URL
func (s *ImageService) Upload(ctx context.Context, data []byte, filename string) (url string, err error) {
	defer func() {
		metrics.ImageOperations.WithLabelValues("upload", metrics.Outcome(err)).Inc()
	}()

	if !s.IsEnabled() {
		return "", ErrImageStorageNotConfigured
	}

	img, err := s.validateAndDecode(data, filename)
	if err != nil {
		return "", err
	}

	imageID := uuid.New()
	urls := make([]string, 0, len(imageVariants))

	for _, variant := range imageVariants {
		processed := img
		if img.Bounds().Dx() > variant.maxWidth {
			processed = imaging.Resize(img, variant.maxWidth, 0, imaging.Lanczos)
		}

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, processed, &jpeg.Options{Quality: JPEGQuality}); err != nil {
			s.cleanup(ctx, urls)
			return "", fmt.Errorf("failed to encode image: %w", err)
		}

		objectPath := storage.GenerateObjectPath(imageID, variant.name, ".jpg")
		variantURL, err := s.storage.Upload(ctx, objectPath, bytes.NewReader(buf.Bytes()), "image/jpeg", int64(buf.Len()))
		if err != nil {
			s.cleanup(ctx, urls)
			return "", fmt.Errorf("failed to upload %s variant: %w", variant.name, err)
		}
		urls = append(urls, variantURL)
	}

	log.Info().
		Str("image_id", imageID.String()).
		Int("size", len(data)).
		Msg("Image uploaded")

	return urls[0], nil
}

// cleanup removes variants uploaded during a failed operation
func (s *ImageService) cleanup(ctx context.Context, urls []string) {
	for _, u := range urls {
		if err := s.storage.DeleteByURL(ctx, u); err != nil {
			log.Warn().Err(err).Str("url", u).Msg("Failed to clean up image variant")
		}
	}
}

// Delete removes the image behind url together with its other variants.
// URLs not served from the bucket are ignored.
func (s *ImageService) Delete(ctx context.Context, url string) (err error) {
	if url == "" {
		return nil
	}
	if !s.IsEnabled() {
		return ErrImageStorageNotConfigured
	}
	defer func() {
		metrics.ImageOperations.WithLabelValues("delete", metrics.Outcome(err)).Inc()
	}()

	if err := s.storage.DeleteByURL(ctx, url); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrAssetDeleteFailed, err)
	}

	for _, variant := range imageVariants {
		sibling, ok := storage.SiblingPath(url, variant.name)
		if !ok || sibling == url {
			continue
		}
		if err := s.storage.DeleteByURL(ctx, sibling); err != nil {
			log.Warn().Err(err).Str("url", sibling).Msg("Failed to delete image variant")
		}
	}
	return nil
}

// GetContentType returns the content type for a file extension
func GetContentType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ct, ok := AllowedExtensions[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}
