package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/promptgallery/gallery-backend/internal/domain"
)

const apiTokenSchema = `
CREATE TABLE IF NOT EXISTS api_tokens (
	id            uuid PRIMARY KEY,
	owner_subject text NOT NULL,
	owner_email   text NOT NULL,
	description   text NOT NULL,
	token_hash    text NOT NULL UNIQUE,
	token_prefix  text NOT NULL,
	last_used_at  timestamptz,
	created_at    timestamptz NOT NULL DEFAULT now(),
	revoked_at    timestamptz
);
CREATE INDEX IF NOT EXISTS api_tokens_owner_idx ON api_tokens (owner_subject) WHERE revoked_at IS NULL;
`

const apiTokenColumns = `id, owner_subject, owner_email, description, token_hash, token_prefix, last_used_at, created_at, revoked_at`

// APITokenRepository implements domain.APITokenRepository using PostgreSQL
type APITokenRepository struct {
	db DBTX
}

var _ domain.APITokenRepository = (*APITokenRepository)(nil)

// NewAPITokenRepository creates a new APITokenRepository
func NewAPITokenRepository(db DBTX) *APITokenRepository {
	return &APITokenRepository{db: db}
}

// EnsureSchema creates the api_tokens table when it does not exist
func (r *APITokenRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, apiTokenSchema); err != nil {
		return fmt.Errorf("failed to apply api token schema: %w", err)
	}
	return nil
}

// Create stores a new token and fills in its ID and CreatedAt
func (r *APITokenRepository) Create(ctx context.Context, token *domain.APIToken) error {
	row := r.db.QueryRow(ctx, `
		INSERT INTO api_tokens (id, owner_subject, owner_email, description, token_hash, token_prefix, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		uuid.New(), token.OwnerSubject, token.OwnerEmail, token.Description, token.TokenHash, token.TokenPrefix, time.Now().UTC(),
	)
	return row.Scan(&token.ID, &token.CreatedAt)
}

// ListByOwner returns the owner's active tokens, newest first
func (r *APITokenRepository) ListByOwner(ctx context.Context, ownerSubject string) ([]*domain.APIToken, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+apiTokenColumns+` FROM api_tokens
		WHERE owner_subject = $1 AND revoked_at IS NULL
		ORDER BY created_at DESC`, ownerSubject)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*domain.APIToken, 0)
	for rows.Next() {
		t, err := scanAPIToken(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// GetByHash retrieves an active token by its hash
func (r *APITokenRepository) GetByHash(ctx context.Context, hash string) (*domain.APIToken, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+apiTokenColumns+` FROM api_tokens
		WHERE token_hash = $1 AND revoked_at IS NULL`, hash)
	t, err := scanAPIToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAPITokenNotFound
	}
	return t, err
}

// Revoke marks one of the owner's tokens as revoked
func (r *APITokenRepository) Revoke(ctx context.Context, ownerSubject string, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE api_tokens SET revoked_at = $3
		WHERE id = $1 AND owner_subject = $2 AND revoked_at IS NULL`,
		id, ownerSubject, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAPITokenNotFound
	}
	return nil
}

// UpdateLastUsed stamps last_used_at
func (r *APITokenRepository) UpdateLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE api_tokens SET last_used_at = $2 WHERE id = $1`, id, time.Now().UTC())
	return err
}

// scanAPIToken reads one row in apiTokenColumns order
func scanAPIToken(row pgx.Row) (*domain.APIToken, error) {
	var t domain.APIToken
	err := row.Scan(&t.ID, &t.OwnerSubject, &t.OwnerEmail, &t.Description, &t.TokenHash, &t.TokenPrefix,
		&t.LastUsedAt, &t.CreatedAt, &t.RevokedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
