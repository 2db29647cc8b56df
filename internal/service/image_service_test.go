package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/promptgallery/gallery-backend/internal/domain"
	"github.com/promptgallery/gallery-backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestImage creates a test image of the specified size and format
func createTestImage(width, height int, format string) ([]byte, string) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 0, B: 0, A: 255})
		}
	}

	var buf bytes.Buffer
	var filename string

	switch format {
	case "png":
		png.Encode(&buf, img)
		filename = "test.png"
	default:
		jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85})
		filename = "test.jpg"
	}

	return buf.Bytes(), filename
}

func TestValidateImage(t *testing.T) {
	svc := NewImageService(nil, 1024*1024)

	jpg, jpgName := createTestImage(100, 100, "jpeg")
	pngData, pngName := createTestImage(100, 100, "png")
	tiny, tinyName := createTestImage(30, 30, "jpeg")

	tests := []struct {
		name     string
		data     []byte
		filename string
		want     error
	}{
		{"valid jpeg", jpg, jpgName, nil},
		{"valid png", pngData, pngName, nil},
		{"too large", make([]byte, 1024*1024+1), "big.jpg", ErrImageTooLarge},
		{"unsupported extension", jpg, "test.gif", ErrInvalidFormat},
		{"too small", tiny, tinyName, ErrImageTooSmall},
		{"not an image", []byte("not an image"), "test.jpg", ErrInvalidImageData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.ValidateImage(tt.data, tt.filename)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewImageService_DefaultMaxSize(t *testing.T) {
	svc := NewImageService(nil, 0)
	assert.Equal(t, int64(10*1024*1024), svc.MaxSize())
	assert.False(t, svc.IsEnabled())
}

func TestImageService_Upload(t *testing.T) {
	repo := testutil.NewMockImageRepository()
	svc := NewImageService(repo, 0)

	data, filename := createTestImage(2000, 1000, "png")
	url, err := svc.Upload(context.Background(), data, filename)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(url, repo.BaseURL+"/prompts/"))
	assert.True(t, strings.HasSuffix(url, "_display.jpg"))

	keys := repo.Keys()
	require.Len(t, keys, 2)

	display, _, err := image.Decode(bytes.NewReader(repo.Objects[strings.TrimPrefix(url, repo.BaseURL+"/")]))
	require.NoError(t, err)
	assert.Equal(t, DisplayWidth, display.Bounds().Dx())
	assert.Equal(t, DisplayWidth/2, display.Bounds().Dy())
}

func TestImageService_UploadDisabled(t *testing.T) {
	svc := NewImageService(nil, 0)
	data, filename := createTestImage(100, 100, "jpeg")

	_, err := svc.Upload(context.Background(), data, filename)
	assert.ErrorIs(t, err, ErrImageStorageNotConfigured)
}

func TestImageService_UploadCleansUpOnFailure(t *testing.T) {
	repo := testutil.NewMockImageRepository()
	calls := 0
	repo.UploadFn = func(ctx context.Context, objectPath string, data io.Reader, contentType string, size int64) (string, error) {
		calls++
		if calls == 2 {
			return "", errors.New("bucket unavailable")
		}
		buf, _ := io.ReadAll(data)
		repo.Objects[objectPath] = buf
		return repo.GenerateURL(objectPath), nil
	}
	svc := NewImageService(repo, 0)

	data, filename := createTestImage(100, 100, "jpeg")
	_, err := svc.Upload(context.Background(), data, filename)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "thumb")
	assert.Empty(t, repo.Keys(), "display variant should be removed")
}

func TestImageService_DeleteRemovesVariants(t *testing.T) {
	repo := testutil.NewMockImageRepository()
	svc := NewImageService(repo, 0)

	data, filename := createTestImage(100, 100, "jpeg")
	url, err := svc.Upload(context.Background(), data, filename)
	require.NoError(t, err)
	require.Len(t, repo.Keys(), 2)

	require.NoError(t, svc.Delete(context.Background(), url))
	assert.Empty(t, repo.Keys())
}

func TestImageService_Delete(t *testing.T) {
	t.Run("empty url is a no-op", func(t *testing.T) {
		assert.NoError(t, NewImageService(nil, 0).Delete(context.Background(), ""))
	})

	t.Run("disabled storage", func(t *testing.T) {
		err := NewImageService(nil, 0).Delete(context.Background(), "https://cdn.example.com/x.jpg")
		assert.ErrorIs(t, err, ErrImageStorageNotConfigured)
	})

	t.Run("storage failure", func(t *testing.T) {
		repo := testutil.NewMockImageRepository()
		repo.DeleteFn = func(ctx context.Context, objectPath string) error {
			return errors.New("access denied")
		}
		err := NewImageService(repo, 0).Delete(context.Background(), repo.GenerateURL("prompts/legacy.jpg"))
		assert.ErrorIs(t, err, domain.ErrAssetDeleteFailed)
	})
}

func TestGetContentType(t *testing.T) {
	tests := []struct {
		filename string
		expected string
	}{
		{"test.jpg", "image/jpeg"},
		{"test.JPEG", "image/jpeg"},
		{"test.png", "image/png"},
		{"test.gif", "application/octet-stream"},
		{"test.txt", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetContentType(tt.filename))
		})
	}
}
