package websocket

import (
	"context"
	"errors"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/promptgallery/gallery-backend/internal/domain"
)

// ErrInvalidToken is returned when JWT validation fails
var ErrInvalidToken = errors.New("invalid token")

// TokenValidator validates a raw JWT and returns its claims
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (interface{}, error)
}

// emailClaims is satisfied by custom claims carrying an email
type emailClaims interface {
	EmailAddress() string
}

// Auth0JWTValidator resolves the user behind a WebSocket token
type Auth0JWTValidator struct {
	validator TokenValidator
	admins    domain.AdminList
}

// NewAuth0JWTValidator wraps the API's token validator for WebSocket use
func NewAuth0JWTValidator(v TokenValidator, admins domain.AdminList) *Auth0JWTValidator {
	return &Auth0JWTValidator{validator: v, admins: admins}
}

// ValidateToken validates a JWT token and returns the user it identifies
func (v *Auth0JWTValidator) ValidateToken(ctx context.Context, token string) (*domain.User, error) {
	claims, err := v.validator.ValidateToken(ctx, token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	validatedClaims, ok := claims.(*validator.ValidatedClaims)
	if !ok || validatedClaims.RegisteredClaims.Subject == "" {
		return nil, ErrInvalidToken
	}

	user := &domain.User{Subject: validatedClaims.RegisteredClaims.Subject}
	if custom, ok := validatedClaims.CustomClaims.(emailClaims); ok {
		user.Email = custom.EmailAddress()
	}
	user.IsAdmin = user.Email != "" && v.admins.Allows(user.Email)
	return user, nil
}
