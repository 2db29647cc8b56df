package client

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/promptgallery/gallery-backend/internal/domain"
)

var errAPITokenInUse = &domain.AuthError{Reason: "an API token is configured; remove it to sign in or out"}

// APITokenAuth is an AuthProvider for a long-lived gallery API token. The
// identity behind the token is fetched from the API once and cached.
type APITokenAuth struct {
	token string
	api   *Client

	mu   sync.Mutex
	user *domain.User
}

var _ TokenSource = (*APITokenAuth)(nil)

// NewAPITokenAuth creates an APITokenAuth for the API at apiURL
func NewAPITokenAuth(apiURL, token string, opts ...Option) *APITokenAuth {
	a := &APITokenAuth{token: token}
	a.api = New(apiURL, append(opts, WithTokenSource(staticToken(token)))...)
	return a
}

// AccessToken returns the configured token
func (a *APITokenAuth) AccessToken(ctx context.Context) (string, error) {
	return a.token, nil
}

// Session resolves the token's owner. A token the server rejects is
// reported as an AuthError.
func (a *APITokenAuth) Session(ctx context.Context) (*domain.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.user != nil {
		u := *a.user
		return &u, nil
	}

	var me sessionResponse
	if err := a.api.doJSON(ctx, "whoami", http.MethodGet, "/api/v1/auth/me", nil, &me); err != nil {
		if IsStatus(err, http.StatusUnauthorized) {
			return nil, &domain.AuthError{Reason: "API token rejected"}
		}
		return nil, err
	}
	a.user = &domain.User{Subject: me.Subject, Email: me.Email, Name: me.Name, IsAdmin: me.IsAdmin}
	u := *a.user
	return &u, nil
}

// SignIn is not available while an API token is configured
func (a *APITokenAuth) SignIn(ctx context.Context, email, password string) (*domain.User, error) {
	return nil, errAPITokenInUse
}

// SignOut is not available while an API token is configured
func (a *APITokenAuth) SignOut(ctx context.Context) error {
	return errAPITokenInUse
}

// OnAuthStateChange never fires; a token's identity does not change
func (a *APITokenAuth) OnAuthStateChange(fn func(domain.AuthEvent)) func() {
	return func() {}
}

// CreateAPIToken issues a token for the signed-in admin
func (c *Client) CreateAPIToken(ctx context.Context, description string) (*domain.CreateAPITokenResponse, error) {
	var out domain.CreateAPITokenResponse
	in := map[string]string{"description": description}
	if err := c.doJSON(ctx, "create token", http.MethodPost, "/api/v1/api-tokens", in, &out); err != nil {
		return nil, mapTokenError(err)
	}
	return &out, nil
}

// ListAPITokens lists the signed-in admin's active tokens
func (c *Client) ListAPITokens(ctx context.Context) ([]domain.APITokenResponse, error) {
	var out []domain.APITokenResponse
	if err := c.doJSON(ctx, "list tokens", http.MethodGet, "/api/v1/api-tokens", nil, &out); err != nil {
		return nil, mapTokenError(err)
	}
	return out, nil
}

// RevokeAPIToken revokes one of the signed-in admin's tokens
func (c *Client) RevokeAPIToken(ctx context.Context, id uuid.UUID) error {
	err := c.doJSON(ctx, "revoke token", http.MethodDelete, "/api/v1/api-tokens/"+id.String(), nil, nil)
	return mapTokenError(err)
}

// mapTokenError turns a 404 into ErrAPITokenNotFound
func mapTokenError(err error) error {
	if IsStatus(err, http.StatusNotFound) {
		return domain.ErrAPITokenNotFound
	}
	return err
}
