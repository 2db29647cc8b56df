package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/promptgallery/gallery-backend/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	// APITokenIDKey is the context key for the API token ID
	APITokenIDKey contextKey = "api_token_id"
	// IsAPITokenAuthKey marks requests authenticated by API token
	IsAPITokenAuthKey contextKey = "is_api_token_auth"
)

// APITokenValidator resolves an API token secret
type APITokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*domain.APIToken, error)
}

// APITokenAuthMiddleware authenticates requests carrying a gallery API token
type APITokenAuthMiddleware struct {
	validator APITokenValidator
	admins    domain.AdminList
}

// NewAPITokenAuthMiddleware creates a new APITokenAuthMiddleware
func NewAPITokenAuthMiddleware(validator APITokenValidator, admins domain.AdminList) *APITokenAuthMiddleware {
	return &APITokenAuthMiddleware{validator: validator, admins: admins}
}

// Authenticate returns an Echo middleware that only accepts API tokens
func (m *APITokenAuthMiddleware) Authenticate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := bearerToken(c)
			if !ok {
				return unauthorizedError(c, "invalid authorization header format")
			}
			if !domain.IsAPIToken(token) {
				return unauthorizedError(c, "invalid token format")
			}
			return m.authenticateWithToken(token)(next)(c)
		}
	}
}

func (m *APITokenAuthMiddleware) authenticateWithToken(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			apiToken, err := m.validator.ValidateToken(c.Request().Context(), token)
			if err != nil {
				if errors.Is(err, domain.ErrAPITokenNotFound) {
					log.Debug().Msg("API token not found or revoked")
					return unauthorizedError(c, "invalid or revoked API token")
				}
				log.Error().Err(err).Msg("API token validation failed")
				return unauthorizedError(c, "token validation failed")
			}

			user := apiToken.Owner()
			user.IsAdmin = m.admins.Allows(user.Email)

			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, Auth0IDKey, user.Subject)
			ctx = context.WithValue(ctx, UserKey, user)
			ctx = context.WithValue(ctx, APITokenIDKey, apiToken.ID)
			ctx = context.WithValue(ctx, IsAPITokenAuthKey, true)
			c.SetRequest(c.Request().WithContext(ctx))

			log.Debug().
				Str("token_id", apiToken.ID.String()).
				Str("subject", user.Subject).
				Msg("API token authentication successful")

			return next(c)
		}
	}
}

// bearerToken extracts the credential from "Authorization: Bearer <token>"
func bearerToken(c echo.Context) (string, bool) {
	parts := strings.SplitN(c.Request().Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// GetAPITokenID extracts the API token ID from the context
func GetAPITokenID(c echo.Context) uuid.UUID {
	if id, ok := c.Request().Context().Value(APITokenIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// IsAPITokenAuth reports whether the request was authenticated by API token
func IsAPITokenAuth(c echo.Context) bool {
	if v, ok := c.Request().Context().Value(IsAPITokenAuthKey).(bool); ok {
		return v
	}
	return false
}
