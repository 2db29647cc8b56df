package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/promptgallery/gallery-backend/internal/domain"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schema = `
CREATE TABLE IF NOT EXISTS prompts (
	id             uuid PRIMARY KEY,
	body           text NOT NULL,
	categories     text[] NOT NULL DEFAULT '{}',
	reference_code text,
	image_source   text,
	image_url      text,
	created_at     timestamptz NOT NULL DEFAULT now(),
	updated_at     timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS prompts_created_at_idx ON prompts (created_at DESC);
`

const promptColumns = `id, body, categories, reference_code, image_source, image_url, created_at, updated_at`

// PromptRepository implements domain.PromptRepository using PostgreSQL
type PromptRepository struct {
	db DBTX
}

var _ domain.PromptRepository = (*PromptRepository)(nil)

// NewPromptRepository creates a new PromptRepository
func NewPromptRepository(db DBTX) *PromptRepository {
	return &PromptRepository{db: db}
}

// EnsureSchema creates the prompts table when it does not exist
func (r *PromptRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// List returns every prompt, newest first
func (r *PromptRepository) List(ctx context.Context) ([]*domain.Prompt, error) {
	rows, err := r.db.Query(ctx, `SELECT `+promptColumns+` FROM prompts ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*domain.Prompt, 0)
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// GetByID retrieves a prompt by its ID
func (r *PromptRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Prompt, error) {
	row := r.db.QueryRow(ctx, `SELECT `+promptColumns+` FROM prompts WHERE id = $1`, id)
	return notFound(scanPrompt(row))
}

// Create inserts a new prompt with a server-assigned id and timestamps
func (r *PromptRepository) Create(ctx context.Context, fields domain.PromptFields) (*domain.Prompt, error) {
	source, url := imageColumns(fields.Image)
	now := time.Now().UTC()
	row := r.db.QueryRow(ctx, `
		INSERT INTO prompts (id, body, categories, reference_code, image_source, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING `+promptColumns,
		uuid.New(), fields.Body, categoriesParam(fields.Categories), fields.ReferenceCode, source, url, now,
	)
	return scanPrompt(row)
}

// Update replaces the mutable fields of a prompt
func (r *PromptRepository) Update(ctx context.Context, id uuid.UUID, fields domain.PromptFields) (*domain.Prompt, error) {
	source, url := imageColumns(fields.Image)
	row := r.db.QueryRow(ctx, `
		UPDATE prompts
		SET body = $2, categories = $3, reference_code = $4, image_source = $5, image_url = $6, updated_at = $7
		WHERE id = $1
		RETURNING `+promptColumns,
		id, fields.Body, categoriesParam(fields.Categories), fields.ReferenceCode, source, url, time.Now().UTC(),
	)
	return notFound(scanPrompt(row))
}

// Delete removes a prompt
func (r *PromptRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM prompts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPromptNotFound
	}
	return nil
}

// scanPrompt reads one row in promptColumns order
func scanPrompt(row pgx.Row) (*domain.Prompt, error) {
	var (
		p           domain.Prompt
		imageSource *string
		imageURL    *string
	)
	err := row.Scan(&p.ID, &p.Body, &p.Categories, &p.ReferenceCode, &imageSource, &imageURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if imageURL != nil && *imageURL != "" {
		src := domain.ImageSourceExternal
		if imageSource != nil {
			src = domain.ImageSource(*imageSource)
		}
		p.Image = &domain.ImageRef{Source: src, URL: *imageURL}
	}
	if p.Categories == nil {
		p.Categories = []string{}
	}
	return &p, nil
}

func notFound(p *domain.Prompt, err error) (*domain.Prompt, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPromptNotFound
	}
	return p, err
}

func imageColumns(img *domain.ImageRef) (source, url *string) {
	if img == nil {
		return nil, nil
	}
	s := string(img.Source)
	u := img.URL
	return &s, &u
}

// categoriesParam keeps NOT NULL satisfied for an empty set
func categoriesParam(c []string) []string {
	if c == nil {
		return []string{}
	}
	return c
}
