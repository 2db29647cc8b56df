package domain

import (
	"context"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxBodyLength is the advisory cap on a prompt body, in characters.
// Bodies over the cap are accepted and only flagged for a warning.
const MaxBodyLength = 1000

// ImageSource tells where a prompt's image lives
type ImageSource string

const (
	// ImageSourceExternal is an externally hosted URL
	ImageSourceExternal ImageSource = "external"
	// ImageSourceAsset is an object owned by the gallery's asset store
	ImageSourceAsset ImageSource = "asset"
)

// ImageRef is the single image representation of a prompt
type ImageRef struct {
	Source ImageSource `json:"source"`
	URL    string      `json:"url"`
}

// ExternalImage returns an image reference to a hosted URL
func ExternalImage(u string) *ImageRef {
	return &ImageRef{Source: ImageSourceExternal, URL: u}
}

// AssetImage returns an image reference to an asset store object
func AssetImage(publicURL string) *ImageRef {
	return &ImageRef{Source: ImageSourceAsset, URL: publicURL}
}

// OwnsAsset reports whether the image is held in the asset store
func (r *ImageRef) OwnsAsset() bool {
	return r != nil && r.Source == ImageSourceAsset && r.URL != ""
}

// Prompt is one gallery entry
type Prompt struct {
	ID            uuid.UUID `json:"id"`
	Body          string    `json:"body"`
	Categories    []string  `json:"categories"`
	ReferenceCode *string   `json:"referenceCode,omitempty"`
	Image         *ImageRef `json:"image,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// HasCategory reports whether the prompt is tagged with category
func (p *Prompt) HasCategory(category string) bool {
	for _, c := range p.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Clone returns a deep copy
func (p Prompt) Clone() Prompt {
	out := p
	out.Categories = append([]string(nil), p.Categories...)
	if p.ReferenceCode != nil {
		ref := *p.ReferenceCode
		out.ReferenceCode = &ref
	}
	if p.Image != nil {
		img := *p.Image
		out.Image = &img
	}
	return out
}

// PromptFields are the replaceable fields of a prompt
type PromptFields struct {
	Body          string    `json:"body"`
	Categories    []string  `json:"categories"`
	ReferenceCode *string   `json:"referenceCode,omitempty"`
	Image         *ImageRef `json:"image,omitempty"`
}

// Normalize trims text fields and collapses duplicate categories
func (f *PromptFields) Normalize() {
	f.Body = strings.TrimSpace(f.Body)
	f.Categories = NormalizeCategories(f.Categories)
	if f.ReferenceCode != nil {
		ref := strings.TrimSpace(*f.ReferenceCode)
		if ref == "" {
			f.ReferenceCode = nil
		} else {
			f.ReferenceCode = &ref
		}
	}
	if f.Image != nil && strings.TrimSpace(f.Image.URL) == "" {
		f.Image = nil
	}
}

// Validate runs the required-field checks shared by every write path
func (f *PromptFields) Validate() error {
	verr := ValidatePromptInput(f.Body, f.Categories)
	if f.Image != nil {
		if f.Image.Source != ImageSourceExternal && f.Image.Source != ImageSourceAsset {
			verr.Add("image", "Image source must be external or asset")
		} else if !ValidImageURL(f.Image.URL) {
			verr.Add("image", "Image URL must be a valid URL")
		}
	}
	return verr.OrNil()
}

// ValidatePromptInput checks body and categories before any network call
func ValidatePromptInput(body string, categories []string) *ValidationError {
	verr := &ValidationError{}
	if strings.TrimSpace(body) == "" {
		verr.Add("body", "Please enter a prompt")
	}
	if len(categories) == 0 {
		verr.Add("categories", "Please select at least one category")
	}
	for _, c := range categories {
		if !IsCategory(c) {
			verr.Add("categories", "Unknown category: "+c)
			break
		}
	}
	return verr
}

// ValidImageURL reports whether u is an absolute http(s) URL
func ValidImageURL(u string) bool {
	parsed, err := url.ParseRequestURI(u)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

// BodyLength counts characters, not bytes
func BodyLength(body string) int {
	return utf8.RuneCountInString(body)
}

// BodyExceedsSoftLimit reports whether the body should carry a length warning
func BodyExceedsSoftLimit(body string) bool {
	return BodyLength(body) > MaxBodyLength
}

// PromptRepository defines the interface for prompt data access
type PromptRepository interface {
	List(ctx context.Context) ([]*Prompt, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Prompt, error)
	Create(ctx context.Context, fields PromptFields) (*Prompt, error)
	Update(ctx context.Context, id uuid.UUID, fields PromptFields) (*Prompt, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
