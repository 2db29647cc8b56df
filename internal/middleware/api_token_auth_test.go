package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/promptgallery/gallery-backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTokenStore resolves API tokens from a map
type fakeTokenStore struct {
	tokens map[string]*domain.APIToken
	err    error
}

func (f *fakeTokenStore) ValidateToken(ctx context.Context, token string) (*domain.APIToken, error) {
	if f.err != nil {
		return nil, f.err
	}
	if t, ok := f.tokens[token]; ok {
		return t, nil
	}
	return nil, domain.ErrAPITokenNotFound
}

var (
	adminTokenID  = uuid.New()
	formerTokenID = uuid.New()
)

func newTestTokenStore() *fakeTokenStore {
	return &fakeTokenStore{tokens: map[string]*domain.APIToken{
		"pgal_admin":  {ID: adminTokenID, OwnerSubject: "auth0|admin", OwnerEmail: "admin@example.com"},
		"pgal_former": {ID: formerTokenID, OwnerSubject: "auth0|former", OwnerEmail: "former-admin@example.com"},
	}}
}

func newTestDualAuth(store *fakeTokenStore) *DualAuthMiddleware {
	jwt := newTestAuth()
	return NewDualAuthMiddleware(jwt, NewAPITokenAuthMiddleware(store, jwt.admins))
}

func TestAPITokenAuth_Authenticate(t *testing.T) {
	m := NewAPITokenAuthMiddleware(newTestTokenStore(), domain.NewAdminList([]string{"admin@example.com"}))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/prompts", nil)
	req.Header.Set("Authorization", "Bearer pgal_admin")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	err := m.Authenticate()(func(c echo.Context) error {
		called = true
		assert.True(t, IsAPITokenAuth(c))
		assert.Equal(t, adminTokenID, GetAPITokenID(c))
		assert.Equal(t, "auth0|admin", GetAuth0ID(c))
		require.NotNil(t, GetUser(c))
		assert.True(t, GetUser(c).IsAdmin)
		return c.NoContent(http.StatusOK)
	})(c)
	require.NoError(t, err)
	assert.True(t, called)

	rec, _ = serve(t, []echo.MiddlewareFunc{m.Authenticate()}, "Bearer admin-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "JWTs are not API tokens")
}

func TestDualAuth(t *testing.T) {
	m := newTestDualAuth(newTestTokenStore())
	chain := []echo.MiddlewareFunc{m.Authenticate(), m.RequireAdmin()}

	tests := []struct {
		name    string
		header  string
		status  int
		subject string
	}{
		{"missing header", "", http.StatusUnauthorized, ""},
		{"bare token without scheme", "pgal_admin", http.StatusUnauthorized, ""},
		{"admin JWT", "Bearer admin-token", http.StatusOK, "auth0|admin"},
		{"viewer JWT", "Bearer viewer-token", http.StatusForbidden, ""},
		{"admin API token", "Bearer pgal_admin", http.StatusOK, "auth0|admin"},
		{"revoked API token", "Bearer pgal_revoked", http.StatusUnauthorized, ""},
		{"token of a removed admin", "Bearer pgal_former", http.StatusForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, user := serve(t, chain, tt.header)
			assert.Equal(t, tt.status, rec.Code)
			if tt.subject != "" {
				require.NotNil(t, user)
				assert.Equal(t, tt.subject, user.Subject)
			}
		})
	}
}

func TestDualAuth_StoreFailure(t *testing.T) {
	store := newTestTokenStore()
	store.err = errors.New("pool closed")
	m := newTestDualAuth(store)

	rec, user := serve(t, []echo.MiddlewareFunc{m.Authenticate()}, "Bearer pgal_admin")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, user)
}

func TestDualAuth_JWTOnly(t *testing.T) {
	m := newTestDualAuth(newTestTokenStore())

	rec, _ := serve(t, []echo.MiddlewareFunc{m.JWTOnly()}, "Bearer pgal_admin")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "signed-in session")

	rec, user := serve(t, []echo.MiddlewareFunc{m.JWTOnly()}, "Bearer admin-token")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, user)
	assert.Equal(t, "auth0|admin", user.Subject)
}
