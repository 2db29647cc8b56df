package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/promptgallery/gallery-backend/internal/domain"
	"github.com/promptgallery/gallery-backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tokenOwner = &domain.User{Subject: "auth0|admin", Email: "admin@example.com", IsAdmin: true}

func TestAPITokenService_CreateAndValidate(t *testing.T) {
	repo := testutil.NewMockAPITokenRepository()
	svc := NewAPITokenService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, tokenOwner, "  nightly export  ")
	require.NoError(t, err)
	assert.True(t, domain.IsAPIToken(created.Token))
	assert.Equal(t, "nightly export", created.Description)
	assert.True(t, strings.HasPrefix(created.Token, strings.TrimSuffix(created.TokenPrefix, "...")))

	stored := repo.Tokens[created.ID]
	require.NotNil(t, stored)
	assert.NotEqual(t, created.Token, stored.TokenHash, "only the hash is stored")
	assert.Equal(t, "admin@example.com", stored.OwnerEmail)

	got, err := svc.ValidateToken(ctx, created.Token)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Eventually(t, func() bool { return repo.LastUsed(created.ID) != nil }, time.Second, 10*time.Millisecond)

	_, err = svc.ValidateToken(ctx, created.Token+"x")
	assert.ErrorIs(t, err, domain.ErrAPITokenNotFound)
	_, err = svc.ValidateToken(ctx, "eyJhbGciOi.jwt.looking")
	assert.ErrorIs(t, err, domain.ErrAPITokenNotFound)
}

func TestAPITokenService_CreateValidation(t *testing.T) {
	svc := NewAPITokenService(testutil.NewMockAPITokenRepository())

	_, err := svc.Create(context.Background(), tokenOwner, "   ")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.HasField("description"))

	_, err = svc.Create(context.Background(), tokenOwner, strings.Repeat("x", 256))
	assert.ErrorAs(t, err, &verr)
}

func TestAPITokenService_Limit(t *testing.T) {
	svc := NewAPITokenService(testutil.NewMockAPITokenRepository())
	for i := 0; i < maxTokensPerOwner; i++ {
		_, err := svc.Create(context.Background(), tokenOwner, "ci")
		require.NoError(t, err)
	}
	_, err := svc.Create(context.Background(), tokenOwner, "one too many")
	assert.ErrorIs(t, err, domain.ErrTooManyAPITokens)

	other := &domain.User{Subject: "auth0|other", Email: "other@example.com"}
	_, err = svc.Create(context.Background(), other, "separate quota")
	assert.NoError(t, err)
}

func TestAPITokenService_ListAndRevoke(t *testing.T) {
	svc := NewAPITokenService(testutil.NewMockAPITokenRepository())
	ctx := context.Background()

	first, err := svc.Create(ctx, tokenOwner, "first")
	require.NoError(t, err)
	second, err := svc.Create(ctx, tokenOwner, "second")
	require.NoError(t, err)

	list, err := svc.List(ctx, tokenOwner.Subject)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")

	assert.ErrorIs(t, svc.Revoke(ctx, "auth0|someone-else", first.ID), domain.ErrAPITokenNotFound)
	require.NoError(t, svc.Revoke(ctx, tokenOwner.Subject, first.ID))
	assert.ErrorIs(t, svc.Revoke(ctx, tokenOwner.Subject, uuid.New()), domain.ErrAPITokenNotFound)

	_, err = svc.ValidateToken(ctx, first.Token)
	assert.ErrorIs(t, err, domain.ErrAPITokenNotFound, "revoked tokens stop working")

	list, err = svc.List(ctx, tokenOwner.Subject)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
