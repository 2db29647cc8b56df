package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/labstack/echo/v4"
	"github.com/promptgallery/gallery-backend/internal/domain"
	"github.com/promptgallery/gallery-backend/internal/middleware"
	"github.com/promptgallery/gallery-backend/internal/service"
	"github.com/promptgallery/gallery-backend/internal/testutil"
	"github.com/promptgallery/gallery-backend/internal/websocket"
	"github.com/stretchr/testify/assert"
)

type tokenTable map[string]string

func (t tokenTable) ValidateToken(ctx context.Context, token string) (interface{}, error) {
	email, ok := t[token]
	if !ok {
		return nil, errors.New("bad signature")
	}
	return &validator.ValidatedClaims{
		RegisteredClaims: validator.RegisteredClaims{Subject: "auth0|" + token},
		CustomClaims:     &middleware.CustomClaims{Email: email},
	}, nil
}

// newTestServer serves the real routes over in-memory repositories and
// returns an API token issued to the admin
func newTestServer(t *testing.T) (*echo.Echo, string) {
	t.Helper()
	tokens := tokenTable{"admin": "admin@example.com", "viewer": "viewer@example.com"}
	admins := domain.NewAdminList([]string{"admin@example.com"})
	jwtAuth := middleware.NewAuthMiddlewareWithValidator(tokens, admins)
	apiTokens := service.NewAPITokenService(testutil.NewMockAPITokenRepository())
	auth := middleware.NewDualAuthMiddleware(jwtAuth, middleware.NewAPITokenAuthMiddleware(apiTokens, admins))
	limiter := middleware.NewRateLimiterWithConfig(600, 100)
	t.Cleanup(limiter.Stop)

	issued, err := apiTokens.Create(context.Background(), &domain.User{Subject: "auth0|admin", Email: "admin@example.com"}, "tests")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	hub := websocket.NewHub()
	prompts := service.NewPromptService(testutil.NewMockPromptRepository())
	prompts.SetEventPublisher(hub)

	e := echo.New()
	RegisterRoutes(e, auth, limiter,
		NewAuthHandler(),
		NewPromptHandler(prompts),
		NewImageHandler(service.NewImageService(testutil.NewMockImageRepository(), 0)),
		NewAPITokenHandler(apiTokens),
		NewWebSocketHandler(hub, websocket.NewAuth0JWTValidator(tokens, domain.NewAdminList(nil)), nil),
	)
	return e, issued.Token
}

func TestRoutes_Access(t *testing.T) {
	e, apiToken := newTestServer(t)
	newPrompt := `{"body":"x","categories":["Photo"]}`

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   string
		status int
	}{
		{"public list", http.MethodGet, "/api/v1/prompts", "", "", http.StatusOK},
		{"create without token", http.MethodPost, "/api/v1/prompts", "", newPrompt, http.StatusUnauthorized},
		{"create with bad token", http.MethodPost, "/api/v1/prompts", "forged", newPrompt, http.StatusUnauthorized},
		{"create as viewer", http.MethodPost, "/api/v1/prompts", "viewer", newPrompt, http.StatusForbidden},
		{"create as admin", http.MethodPost, "/api/v1/prompts", "admin", newPrompt, http.StatusCreated},
		{"upload as viewer", http.MethodPost, "/api/v1/images", "viewer", "", http.StatusForbidden},
		{"delete image as admin without url", http.MethodDelete, "/api/v1/images", "admin", "", http.StatusBadRequest},
		{"me without token", http.MethodGet, "/api/v1/auth/me", "", "", http.StatusUnauthorized},
		{"me as viewer", http.MethodGet, "/api/v1/auth/me", "viewer", "", http.StatusOK},
		{"me with API token", http.MethodGet, "/api/v1/auth/me", apiToken, "", http.StatusOK},
		{"create with API token", http.MethodPost, "/api/v1/prompts", apiToken, newPrompt, http.StatusCreated},
		{"create with unknown API token", http.MethodPost, "/api/v1/prompts", "pgal_unknown", newPrompt, http.StatusUnauthorized},
		{"list tokens as admin", http.MethodGet, "/api/v1/api-tokens", "admin", "", http.StatusOK},
		{"list tokens as viewer", http.MethodGet, "/api/v1/api-tokens", "viewer", "", http.StatusForbidden},
		{"list tokens with API token", http.MethodGet, "/api/v1/api-tokens", apiToken, "", http.StatusUnauthorized},
		{"mint token with API token", http.MethodPost, "/api/v1/api-tokens", apiToken, `{"description":"x"}`, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			if tt.token != "" {
				req.Header.Set(echo.HeaderAuthorization, "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}
