package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/promptgallery/gallery-backend/internal/domain"
	"github.com/rs/zerolog/log"
)

// DualAuthMiddleware accepts either an Auth0 JWT or a gallery API token
type DualAuthMiddleware struct {
	jwtAuth      *AuthMiddleware
	apiTokenAuth *APITokenAuthMiddleware
}

// NewDualAuthMiddleware creates a new DualAuthMiddleware
func NewDualAuthMiddleware(jwtAuth *AuthMiddleware, apiTokenAuth *APITokenAuthMiddleware) *DualAuthMiddleware {
	return &DualAuthMiddleware{jwtAuth: jwtAuth, apiTokenAuth: apiTokenAuth}
}

// Authenticate dispatches on the token format: API tokens go to the token
// store, anything else is validated as a JWT
func (m *DualAuthMiddleware) Authenticate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return unauthorizedError(c, "missing authorization header")
			}
			token, ok := bearerToken(c)
			if !ok {
				return unauthorizedError(c, "invalid authorization header format")
			}
			if domain.IsAPIToken(token) {
				return m.apiTokenAuth.authenticateWithToken(token)(next)(c)
			}
			return m.jwtAuth.Authenticate()(next)(c)
		}
	}
}

// JWTOnly rejects API tokens. Token management uses it so a leaked token
// cannot mint more tokens.
func (m *DualAuthMiddleware) JWTOnly() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token, ok := bearerToken(c); ok && domain.IsAPIToken(token) {
				log.Debug().Msg("API token rejected on session-only route")
				return unauthorizedError(c, "this endpoint requires a signed-in session")
			}
			return m.jwtAuth.Authenticate()(next)(c)
		}
	}
}

// RequireAdmin delegates to the JWT middleware's admin gate
func (m *DualAuthMiddleware) RequireAdmin() echo.MiddlewareFunc {
	return m.jwtAuth.RequireAdmin()
}
