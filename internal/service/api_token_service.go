package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/promptgallery/gallery-backend/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	// tokenRandomBytes is the number of random bytes in a token (256 bits)
	tokenRandomBytes = 32
	// tokenDisplayLength is how much of the secret the listing shows
	tokenDisplayLength = 8
	// maxTokensPerOwner caps active tokens per admin
	maxTokensPerOwner = 10
	// maxDescriptionLength caps the token description
	maxDescriptionLength = 255
)

// APITokenService issues, lists, revokes and validates API tokens
type APITokenService struct {
	repo domain.APITokenRepository
}

// NewAPITokenService creates a new APITokenService
func NewAPITokenService(repo domain.APITokenRepository) *APITokenService {
	return &APITokenService{repo: repo}
}

// Create issues a token for owner and returns the full secret once
func (s *APITokenService) Create(ctx context.Context, owner *domain.User, description string) (*domain.CreateAPITokenResponse, error) {
	description = strings.TrimSpace(description)
	verr := &domain.ValidationError{}
	switch {
	case description == "":
		verr.Add("description", "Description is required")
	case len(description) > maxDescriptionLength:
		verr.Add("description", fmt.Sprintf("Description must be %d characters or less", maxDescriptionLength))
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	existing, err := s.repo.ListByOwner(ctx, owner.Subject)
	if err != nil {
		return nil, err
	}
	if len(existing) >= maxTokensPerOwner {
		return nil, domain.ErrTooManyAPITokens
	}

	raw, err := generateSecureToken()
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate secure token")
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	full := domain.APITokenPrefix + raw
	display := domain.APITokenPrefix + raw[:tokenDisplayLength] + "..."

	token := &domain.APIToken{
		OwnerSubject: owner.Subject,
		OwnerEmail:   owner.Email,
		Description:  description,
		TokenHash:    hashToken(full),
		TokenPrefix:  display,
	}
	if err := s.repo.Create(ctx, token); err != nil {
		log.Error().Err(err).Str("subject", owner.Subject).Msg("Failed to create API token")
		return nil, err
	}

	log.Info().
		Str("token_id", token.ID.String()).
		Str("subject", owner.Subject).
		Str("description", description).
		Msg("API token created")

	return &domain.CreateAPITokenResponse{
		ID:          token.ID,
		Description: description,
		TokenPrefix: display,
		Token:       full,
		CreatedAt:   token.CreatedAt,
		Warning:     "Copy this token now; it will not be shown again.",
	}, nil
}

// List returns the owner's active tokens without secrets
func (s *APITokenService) List(ctx context.Context, ownerSubject string) ([]*domain.APITokenResponse, error) {
	tokens, err := s.repo.ListByOwner(ctx, ownerSubject)
	if err != nil {
		return nil, err
	}
	result := make([]*domain.APITokenResponse, len(tokens))
	for i, t := range tokens {
		result[i] = &domain.APITokenResponse{
			ID:          t.ID,
			Description: t.Description,
			TokenPrefix: t.TokenPrefix,
			CreatedAt:   t.CreatedAt,
			LastUsedAt:  t.LastUsedAt,
		}
	}
	return result, nil
}

// Revoke revokes one of the owner's tokens
func (s *APITokenService) Revoke(ctx context.Context, ownerSubject string, id uuid.UUID) error {
	if err := s.repo.Revoke(ctx, ownerSubject, id); err != nil {
		return err
	}
	log.Info().Str("subject", ownerSubject).Str("token_id", id.String()).Msg("API token revoked")
	return nil
}

// ValidateToken resolves an active token by its secret
func (s *APITokenService) ValidateToken(ctx context.Context, token string) (*domain.APIToken, error) {
	if !domain.IsAPIToken(token) {
		return nil, domain.ErrAPITokenNotFound
	}
	apiToken, err := s.repo.GetByHash(ctx, hashToken(token))
	if err != nil {
		return nil, err
	}

	go func(id uuid.UUID) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.repo.UpdateLastUsed(ctx, id); err != nil {
			log.Error().Err(err).Str("token_id", id.String()).Msg("Failed to update last_used_at")
		}
	}(apiToken.ID)

	return apiToken, nil
}

func generateSecureToken() (string, error) {
	b := make([]byte, tokenRandomBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
