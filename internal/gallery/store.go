// Package gallery keeps an in-memory prompt list consistent with a remote
// store and derives the filtered view rendered to the user.
//
// The Repository owns the record set and only ever replaces it wholesale on
// reload. The Pipeline validates and sequences writes. Filter and Project are
// pure and hold no shared state.
package gallery

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/promptgallery/gallery-backend/internal/domain"
)

// DefaultMaxAssetSize is the largest local file accepted for upload
const DefaultMaxAssetSize = 10 * 1024 * 1024

// RemoteStore is the persistence service behind the repository.
// Select must return records ordered by CreatedAt descending.
type RemoteStore interface {
	Select(ctx context.Context) ([]domain.Prompt, error)
	Insert(ctx context.Context, fields domain.PromptFields) (*domain.Prompt, error)
	Update(ctx context.Context, id uuid.UUID, fields domain.PromptFields) (*domain.Prompt, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Subscribe(ctx context.Context, onChange func(domain.ChangeEvent)) (Subscription, error)
}

// Subscription is an open change feed
type Subscription interface {
	Close() error
}

// Importer is implemented by stores that can replace their whole working set
type Importer interface {
	ReplaceAll(ctx context.Context, prompts []domain.Prompt) error
}

// LocalFile is an image picked from the local machine
type LocalFile struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

// AssetStore is object storage for uploaded images, addressed by public URL
type AssetStore interface {
	Upload(ctx context.Context, file LocalFile) (publicURL string, err error)
	Delete(ctx context.Context, publicURL string) error
}

// AuthProvider owns the signed-in session. Session returns nil, nil when
// nobody is signed in.
type AuthProvider interface {
	Session(ctx context.Context) (*domain.User, error)
	SignIn(ctx context.Context, email, password string) (*domain.User, error)
	SignOut(ctx context.Context) error
	OnAuthStateChange(fn func(domain.AuthEvent)) (unsubscribe func())
}
