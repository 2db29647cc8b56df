package domain

import (
	"errors"
	"strings"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestValidatePromptInput(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		categories []string
		wantFields []string
	}{
		{"valid", "a cat in a hat", []string{"Nano"}, nil},
		{"empty body", "", []string{"Nano"}, []string{"body"}},
		{"whitespace body", "   ", []string{"Nano"}, []string{"body"}},
		{"no categories", "a cat", nil, []string{"categories"}},
		{"unknown category", "a cat", []string{"Nano", "Cats"}, []string{"categories"}},
		{"both missing", "", nil, []string{"body", "categories"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := ValidatePromptInput(tt.body, tt.categories)
			if len(verr.Fields) != len(tt.wantFields) {
				t.Fatalf("expected %d field errors, got %v", len(tt.wantFields), verr.Fields)
			}
			for _, f := range tt.wantFields {
				if !verr.HasField(f) {
					t.Errorf("expected field error on %s", f)
				}
			}
		})
	}
}

func TestValidationError_IsErrValidation(t *testing.T) {
	verr := ValidatePromptInput("", nil)
	err := verr.OrNil()
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected errors.Is(err, ErrValidation), got %v", err)
	}
	var target *ValidationError
	if !errors.As(err, &target) {
		t.Fatal("expected errors.As to find *ValidationError")
	}
	if !strings.Contains(err.Error(), "body") {
		t.Errorf("expected message to name the body field, got %q", err.Error())
	}
}

func TestValidationError_OrNil(t *testing.T) {
	verr := ValidatePromptInput("ok", []string{"Photo"})
	if verr.OrNil() != nil {
		t.Errorf("expected nil error, got %v", verr.OrNil())
	}
}

func TestPromptFields_NormalizeAndValidate(t *testing.T) {
	fields := PromptFields{
		Body:          "  neon city at dusk  ",
		Categories:    []string{"Photo", "Photo", "Landscape"},
		ReferenceCode: strPtr("   "),
		Image:         &ImageRef{Source: ImageSourceExternal, URL: " "},
	}
	fields.Normalize()

	if fields.Body != "neon city at dusk" {
		t.Errorf("expected trimmed body, got %q", fields.Body)
	}
	if len(fields.Categories) != 2 || fields.Categories[0] != "Photo" || fields.Categories[1] != "Landscape" {
		t.Errorf("expected [Photo Landscape], got %v", fields.Categories)
	}
	if fields.ReferenceCode != nil {
		t.Errorf("expected blank reference code to be dropped")
	}
	if fields.Image != nil {
		t.Errorf("expected blank image to be dropped")
	}
	if err := fields.Validate(); err != nil {
		t.Errorf("expected valid fields, got %v", err)
	}
}

func TestPromptFields_ValidateImage(t *testing.T) {
	fields := PromptFields{
		Body:       "x",
		Categories: []string{"3D"},
		Image:      &ImageRef{Source: "inline", URL: "https://example.com/a.png"},
	}
	if err := fields.Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for bad source, got %v", err)
	}

	fields.Image = ExternalImage("not a url")
	if err := fields.Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for bad url, got %v", err)
	}
}

func TestBodyExceedsSoftLimit(t *testing.T) {
	if BodyExceedsSoftLimit(strings.Repeat("a", MaxBodyLength)) {
		t.Error("body at the cap should not warn")
	}
	if !BodyExceedsSoftLimit(strings.Repeat("a", MaxBodyLength+1)) {
		t.Error("body over the cap should warn")
	}
	// multi-byte characters count once
	if BodyLength("고양이") != 3 {
		t.Errorf("expected 3 characters, got %d", BodyLength("고양이"))
	}
}

func TestImageRef_OwnsAsset(t *testing.T) {
	var nilRef *ImageRef
	if nilRef.OwnsAsset() {
		t.Error("nil image should not own an asset")
	}
	if ExternalImage("https://example.com/a.png").OwnsAsset() {
		t.Error("external image should not own an asset")
	}
	if !AssetImage("https://cdn.example.com/prompts/a_display.jpg").OwnsAsset() {
		t.Error("asset image should own an asset")
	}
}

func TestPrompt_CloneIsDeep(t *testing.T) {
	p := Prompt{
		Body:          "x",
		Categories:    []string{"Nano"},
		ReferenceCode: strPtr("--sref 123"),
		Image:         ExternalImage("https://example.com/a.png"),
	}
	c := p.Clone()
	c.Categories[0] = "Photo"
	*c.ReferenceCode = "changed"
	c.Image.URL = "https://example.com/b.png"

	if p.Categories[0] != "Nano" || *p.ReferenceCode != "--sref 123" || p.Image.URL != "https://example.com/a.png" {
		t.Errorf("clone shares memory with the original: %+v", p)
	}
}

func TestBackendError_Matches(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewBackendError("select", cause)
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Error("expected BackendError to match ErrBackendUnavailable")
	}
	if !errors.Is(err, cause) {
		t.Error("expected BackendError to match its cause")
	}
}

func TestAdminList(t *testing.T) {
	list := NewAdminList([]string{" Admin@Example.com ", ""})
	if !list.Allows("admin@example.com") {
		t.Error("expected case-insensitive match")
	}
	if list.Allows("") {
		t.Error("blank email must not be allowed")
	}
}

func TestNormalizeCategories(t *testing.T) {
	got := NormalizeCategories([]string{"Nano", "", "3D", "Nano"})
	if len(got) != 2 || got[0] != "Nano" || got[1] != "3D" {
		t.Errorf("expected [Nano 3D], got %v", got)
	}
	if NormalizeCategories(nil) != nil {
		t.Error("expected nil for no input")
	}
}

func TestCanonicalCategory(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Photo", "Photo", true},
		{" photo ", "Photo", true},
		{"3d", "3D", true},
		{"all", CategoryAll, true},
		{"", "", false},
		{"Photos", "", false},
	}
	for _, tt := range tests {
		got, ok := CanonicalCategory(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("CanonicalCategory(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestIsAPIToken(t *testing.T) {
	if !IsAPIToken(APITokenPrefix + "abc") {
		t.Error("expected prefixed token to be recognised")
	}
	if IsAPIToken("eyJhbGciOiJSUzI1NiJ9.x.y") {
		t.Error("a JWT is not an API token")
	}
}
