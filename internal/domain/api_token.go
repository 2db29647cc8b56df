package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// APITokenPrefix marks gallery API tokens apart from Auth0 JWTs
const APITokenPrefix = "pgal_"

// IsAPIToken reports whether a bearer credential looks like a gallery API token
func IsAPIToken(token string) bool {
	return strings.HasPrefix(token, APITokenPrefix)
}

var (
	ErrAPITokenNotFound = errors.New("API token not found")
	ErrTooManyAPITokens = errors.New("too many API tokens")
)

// APIToken is a long-lived credential an admin issues for scripts and the CLI.
// A token acts as its owner; admin rights are checked against the current
// admin list on every request, not stored with the token.
type APIToken struct {
	ID           uuid.UUID  `json:"id"`
	OwnerSubject string     `json:"ownerSubject"`
	OwnerEmail   string     `json:"ownerEmail"`
	Description  string     `json:"description"`
	TokenHash    string     `json:"-"`
	TokenPrefix  string     `json:"tokenPrefix"`
	LastUsedAt   *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	RevokedAt    *time.Time `json:"revokedAt,omitempty"`
}

// Owner returns the identity the token acts as
func (t *APIToken) Owner() *User {
	return &User{Subject: t.OwnerSubject, Email: t.OwnerEmail}
}

// APITokenResponse is a token in list responses
type APITokenResponse struct {
	ID          uuid.UUID  `json:"id"`
	Description string     `json:"description"`
	TokenPrefix string     `json:"tokenPrefix"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastUsedAt  *time.Time `json:"lastUsedAt,omitempty"`
}

// CreateAPITokenResponse carries the full token, shown once
type CreateAPITokenResponse struct {
	ID          uuid.UUID `json:"id"`
	Description string    `json:"description"`
	TokenPrefix string    `json:"tokenPrefix"`
	Token       string    `json:"token"`
	CreatedAt   time.Time `json:"createdAt"`
	Warning     string    `json:"warning"`
}

// APITokenRepository defines the interface for API token persistence
type APITokenRepository interface {
	Create(ctx context.Context, token *APIToken) error
	ListByOwner(ctx context.Context, ownerSubject string) ([]*APIToken, error)
	GetByHash(ctx context.Context, hash string) (*APIToken, error)
	Revoke(ctx context.Context, ownerSubject string, id uuid.UUID) error
	UpdateLastUsed(ctx context.Context, id uuid.UUID) error
}
