package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"

	"github.com/promptgallery/gallery-backend/internal/domain"
	"github.com/promptgallery/gallery-backend/internal/gallery"
)

const imagesPath = "/api/v1/images"

// AssetStore uploads prompt images through the gallery API
type AssetStore struct {
	client *Client
}

var _ gallery.AssetStore = (*AssetStore)(nil)

// NewAssetStore creates an AssetStore over c
func NewAssetStore(c *Client) *AssetStore {
	return &AssetStore{client: c}
}

type uploadResponse struct {
	URL string `json:"url"`
}

// Upload sends file as multipart "file" and returns its public URL
func (s *AssetStore) Upload(ctx context.Context, file gallery.LocalFile) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(file.Name)))
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := w.CreatePart(header)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file.Content); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", file.Name, err)
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	var out uploadResponse
	if err := s.client.do(ctx, "upload", http.MethodPost, imagesPath, &body, w.FormDataContentType(), &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", domain.NewBackendError("upload", fmt.Errorf("response carried no url"))
	}
	return out.URL, nil
}

// Delete removes the object behind publicURL
func (s *AssetStore) Delete(ctx context.Context, publicURL string) error {
	q := url.Values{"url": {publicURL}}
	return s.client.do(ctx, "delete_asset", http.MethodDelete, imagesPath+"?"+q.Encode(), nil, "", nil)
}
