package gallery

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/promptgallery/gallery-backend/internal/domain"
	"github.com/rs/zerolog"
)

type imageChangeKind int

const (
	imageExternal imageChangeKind = iota + 1
	imageUpload
	imageRemove
)

// ImageChange describes what to do with a prompt's image. A nil
// *ImageChange means "no image" on create and "keep the current image" on
// update.
type ImageChange struct {
	kind imageChangeKind
	url  string
	file LocalFile
}

// UseExternalImage points the prompt at a hosted URL
func UseExternalImage(url string) *ImageChange {
	return &ImageChange{kind: imageExternal, url: url}
}

// UploadImage stores file in the asset store and points the prompt at it
func UploadImage(file LocalFile) *ImageChange {
	return &ImageChange{kind: imageUpload, file: file}
}

// RemoveImage clears the prompt's image
func RemoveImage() *ImageChange {
	return &ImageChange{kind: imageRemove}
}

// Input is a create or update request
type Input struct {
	Body          string
	Categories    []string
	ReferenceCode *string
	Image         *ImageChange
}

// Pipeline validates and sequences mutations against the remote store and
// refreshes the repository afterward.
type Pipeline struct {
	repo         *Repository
	store        RemoteStore
	assets       AssetStore
	auth         AuthProvider
	maxAssetSize int64
	logger       zerolog.Logger

	locks    *keyedLock
	creating atomic.Int32
}

// PipelineOption configures a Pipeline
type PipelineOption func(*Pipeline)

// WithAssetStore enables local file uploads
func WithAssetStore(assets AssetStore) PipelineOption {
	return func(p *Pipeline) { p.assets = assets }
}

// WithAuthProvider gates every mutation on a signed-in session
func WithAuthProvider(auth AuthProvider) PipelineOption {
	return func(p *Pipeline) { p.auth = auth }
}

// WithMaxAssetSize overrides DefaultMaxAssetSize
func WithMaxAssetSize(n int64) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxAssetSize = n
		}
	}
}

// WithLogger sets the pipeline logger
func WithLogger(logger zerolog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = logger }
}

// NewPipeline creates a Pipeline writing through repo's store
func NewPipeline(repo *Repository, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		repo:         repo,
		store:        repo.store,
		maxAssetSize: DefaultMaxAssetSize,
		logger:       zerolog.Nop(),
		locks:        newKeyedLock(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With().Str("component", "mutation_pipeline").Logger()
	return p
}

// Busy reports whether a mutation on id is in progress
func (p *Pipeline) Busy(id uuid.UUID) bool {
	return p.locks.Held(id)
}

// Creating reports whether a create is in progress
func (p *Pipeline) Creating() bool {
	return p.creating.Load() > 0
}

// Create validates in, uploads a local image if given, inserts the record
// and reloads the repository. A non-nil prompt with a non-nil error means
// the write landed but the reload failed.
func (p *Pipeline) Create(ctx context.Context, in Input) (*domain.Prompt, error) {
	fields, err := p.prepare(in)
	if err != nil {
		return nil, err
	}
	if err := p.requireSession(ctx); err != nil {
		return nil, err
	}

	p.creating.Add(1)
	defer p.creating.Add(-1)

	var uploaded string
	if in.Image != nil && in.Image.kind == imageUpload {
		uploaded, err = p.upload(ctx, in.Image.file)
		if err != nil {
			return nil, err
		}
		fields.Image = domain.AssetImage(uploaded)
	}

	created, err := p.store.Insert(ctx, fields)
	if err != nil {
		if uploaded != "" {
			p.releaseAsset(ctx, uploaded, "rollback")
		}
		return nil, backendError("insert", err)
	}

	p.logger.Info().Str("prompt_id", created.ID.String()).Msg("Prompt created")
	return created, p.refresh(ctx)
}

// Update replaces the mutable fields of prompt id. Without an image change
// the current image is kept verbatim. A replaced or removed asset image is
// released only after the record no longer points at it.
func (p *Pipeline) Update(ctx context.Context, id uuid.UUID, in Input) (*domain.Prompt, error) {
	fields, err := p.prepare(in)
	if err != nil {
		return nil, err
	}
	if err := p.requireSession(ctx); err != nil {
		return nil, err
	}

	if err := p.locks.Lock(ctx, id); err != nil {
		return nil, err
	}
	defer p.locks.Unlock(id)

	current, err := p.current(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := current.Image

	var uploaded string
	switch {
	case in.Image == nil:
		fields.Image = previous
	case in.Image.kind == imageRemove:
		fields.Image = nil
	case in.Image.kind == imageExternal:
		if previous != nil && previous.URL == in.Image.url {
			fields.Image = previous
		} else {
			fields.Image = domain.ExternalImage(in.Image.url)
		}
	case in.Image.kind == imageUpload:
		uploaded, err = p.upload(ctx, in.Image.file)
		if err != nil {
			return nil, err
		}
		fields.Image = domain.AssetImage(uploaded)
	}

	updated, err := p.store.Update(ctx, id, fields)
	if err != nil {
		if uploaded != "" {
			p.releaseAsset(ctx, uploaded, "rollback")
		}
		return nil, backendError("update", err)
	}

	if previous.OwnsAsset() && (fields.Image == nil || fields.Image.URL != previous.URL) {
		p.releaseAsset(ctx, previous.URL, "replace")
	}

	p.logger.Info().Str("prompt_id", id.String()).Msg("Prompt updated")
	return updated, p.refresh(ctx)
}

// Delete removes prompt id. An owned asset is deleted first on a
// best-effort basis; the record delete is attempted regardless.
func (p *Pipeline) Delete(ctx context.Context, id uuid.UUID) error {
	if err := p.requireSession(ctx); err != nil {
		return err
	}

	if err := p.locks.Lock(ctx, id); err != nil {
		return err
	}
	defer p.locks.Unlock(id)

	current, err := p.current(ctx, id)
	if err != nil {
		return err
	}

	if current.Image.OwnsAsset() {
		p.releaseAsset(ctx, current.Image.URL, "delete")
	}

	if err := p.store.Delete(ctx, id); err != nil {
		return backendError("delete", err)
	}

	p.logger.Info().Str("prompt_id", id.String()).Msg("Prompt deleted")
	return p.refresh(ctx)
}

// prepare runs every check that needs no network
func (p *Pipeline) prepare(in Input) (domain.PromptFields, error) {
	fields := domain.PromptFields{
		Body:          in.Body,
		Categories:    in.Categories,
		ReferenceCode: in.ReferenceCode,
	}
	if in.Image != nil && in.Image.kind == imageExternal {
		fields.Image = domain.ExternalImage(in.Image.url)
	}
	fields.Normalize()

	verr := domain.ValidatePromptInput(fields.Body, fields.Categories)
	if in.Image != nil {
		switch in.Image.kind {
		case imageExternal:
			if fields.Image == nil {
				verr.Add("image", "Please enter an image URL")
			} else if !domain.ValidImageURL(fields.Image.URL) {
				verr.Add("image", "Image URL must be a valid URL")
			}
		case imageUpload:
			switch {
			case in.Image.file.Content == nil || in.Image.file.Size <= 0:
				verr.Add("image", "Please choose an image file")
			case in.Image.file.Size > p.maxAssetSize:
				verr.Add("image", fmt.Sprintf("File size must be less than %dMB", p.maxAssetSize/(1024*1024)))
			}
		}
	}
	if err := verr.OrNil(); err != nil {
		return fields, err
	}

	if in.Image != nil && in.Image.kind == imageUpload && p.assets == nil {
		return fields, fmt.Errorf("%w: %w", domain.ErrAssetUploadFailed, domain.ErrAssetStoreDisabled)
	}
	return fields, nil
}

func (p *Pipeline) requireSession(ctx context.Context) error {
	if p.auth == nil {
		return nil
	}
	user, err := p.auth.Session(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrAuthRequired, err)
	}
	if user == nil {
		return domain.ErrAuthRequired
	}
	return nil
}

// current reloads and returns the stored record for id. Image decisions
// read the backend's copy so a change another client made since the last
// reload is never written back or left orphaned.
func (p *Pipeline) current(ctx context.Context, id uuid.UUID) (domain.Prompt, error) {
	if err := p.repo.Reload(ctx); err != nil {
		return domain.Prompt{}, err
	}
	if rec, ok := p.repo.Snapshot().Find(id); ok {
		return rec, nil
	}
	return domain.Prompt{}, domain.ErrPromptNotFound
}

func (p *Pipeline) upload(ctx context.Context, file LocalFile) (string, error) {
	url, err := p.assets.Upload(ctx, file)
	if err != nil {
		p.logger.Error().Err(err).Str("file", file.Name).Msg("Failed to upload image")
		return "", fmt.Errorf("%w: %w", domain.ErrAssetUploadFailed, err)
	}
	return url, nil
}

// releaseAsset deletes an asset object; failures are logged, never returned
func (p *Pipeline) releaseAsset(ctx context.Context, publicURL, reason string) {
	if p.assets == nil {
		p.logger.Warn().Str("url", publicURL).Str("reason", reason).Msg("No asset store to release image")
		return
	}
	if err := p.assets.Delete(ctx, publicURL); err != nil {
		p.logger.Warn().
			Err(fmt.Errorf("%w: %w", domain.ErrAssetDeleteFailed, err)).
			Str("url", publicURL).
			Str("reason", reason).
			Msg("Failed to release image")
	}
}

func (p *Pipeline) refresh(ctx context.Context) error {
	if err := p.repo.Reload(ctx); err != nil {
		return fmt.Errorf("write applied, view may be stale: %w", err)
	}
	return nil
}

func backendError(op string, err error) error {
	var be *domain.BackendError
	if errors.As(err, &be) {
		return err
	}
	return domain.NewBackendError(op, err)
}
