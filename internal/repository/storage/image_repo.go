package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ImageRepository defines the interface for image storage operations
type ImageRepository interface {
	// Upload stores data at objectPath and returns its public URL
	Upload(ctx context.Context, objectPath string, data io.Reader, contentType string, size int64) (string, error)
	Delete(ctx context.Context, objectPath string) error
	// DeleteByURL removes the object behind a public URL. URLs outside the
	// bucket are ignored.
	DeleteByURL(ctx context.Context, imageURL string) error
	GenerateURL(objectPath string) string
}

// PromptImagePrefix is the key prefix for prompt images
const PromptImagePrefix = "prompts"

// GenerateObjectPath creates a unique object path for an image variant.
// Variants of one upload share the id so they can be found from each other.
func GenerateObjectPath(id uuid.UUID, variant string, ext string) string {
	return path.Join(PromptImagePrefix, fmt.Sprintf("%s_%s%s", id, variant, ext))
}

// SiblingPath swaps the variant segment of an object path produced by
// GenerateObjectPath. ok is false for paths it did not produce.
func SiblingPath(objectPath, variant string) (string, bool) {
	dir, file := path.Split(objectPath)
	ext := path.Ext(file)
	stem := strings.TrimSuffix(file, ext)
	i := strings.LastIndex(stem, "_")
	if i <= 0 {
		return "", false
	}
	if _, err := uuid.Parse(stem[:i]); err != nil {
		return "", false
	}
	return dir + stem[:i] + "_" + variant + ext, true
}

// objectPathFromURL extracts the object path from a URL under baseURL
func objectPathFromURL(baseURL, imageURL string) string {
	prefix := strings.TrimSuffix(baseURL, "/") + "/"
	if !strings.HasPrefix(imageURL, prefix) {
		return ""
	}
	objectPath := strings.TrimPrefix(imageURL, prefix)
	if i := strings.IndexAny(objectPath, "?#"); i >= 0 {
		objectPath = objectPath[:i]
	}
	return objectPath
}
