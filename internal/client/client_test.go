package client

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/promptgallery/gallery-backend/internal/domain"
	"github.com/promptgallery/gallery-backend/internal/gallery"
	"github.com/promptgallery/gallery-backend/internal/handler"
	"github.com/promptgallery/gallery-backend/internal/middleware"
	"github.com/promptgallery/gallery-backend/internal/service"
	"github.com/promptgallery/gallery-backend/internal/testutil"
	"github.com/promptgallery/gallery-backend/internal/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tokenTable maps bearer tokens to e-mail addresses
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

type testAPI struct {
	srv    *httptest.Server
	hub    *websocket.Hub
	repo   *testutil.MockPromptRepository
	images *testutil.MockImageRepository
}

// newTestAPI serves the real HTTP surface over in-memory repositories
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	tokens := tokenTable{"admin": "admin@example.com", "viewer": "viewer@example.com"}
	admins := domain.NewAdminList([]string{"admin@example.com"})
	jwtAuth := middleware.NewAuthMiddlewareWithValidator(tokens, admins)
	apiTokens := service.NewAPITokenService(testutil.NewMockAPITokenRepository())
	auth := middleware.NewDualAuthMiddleware(jwtAuth, middleware.NewAPITokenAuthMiddleware(apiTokens, admins))
	limiter := middleware.NewRateLimiterWithConfig(6000, 1000)
	t.Cleanup(limiter.Stop)

	api := &testAPI{
		hub:    websocket.NewHub(),
		repo:   testutil.NewMockPromptRepository(),
		images: testutil.NewMockImageRepository(),
	}
	prompts := service.NewPromptService(api.repo)
	prompts.SetEventPublisher(api.hub)

	e := echo.New()
	handler.RegisterRoutes(e, auth, limiter,
		handler.NewAuthHandler(),
		handler.NewPromptHandler(prompts),
		handler.NewImageHandler(service.NewImageService(api.images, 0)),
		handler.NewAPITokenHandler(apiTokens),
		handler.NewWebSocketHandler(api.hub, websocket.NewAuth0JWTValidator(tokens, admins), nil),
	)
	api.srv = httptest.NewServer(e)
	t.Cleanup(func() {
		api.hub.CloseAll()
		api.srv.Close()
	})
	return api
}

func (a *testAPI) client(token string) *Client {
	opts := []Option{WithHTTPClient(a.srv.Client())}
	if token != "" {
		opts = append(opts, WithTokenSource(staticToken(token)))
	}
	return New(a.srv.URL+"/", opts...)
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPromptTable_CRUD(t *testing.T) {
	api := newTestAPI(t)
	table := NewPromptTable(api.client("admin"))
	ctx := context.Background()

	empty, err := table.Select(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	ref := "--v 6"
	first, err := table.Insert(ctx, domain.PromptFields{
		Body:          "a paper boat",
		Categories:    []string{"Illustration"},
		ReferenceCode: &ref,
		Image:         domain.ExternalImage("https://images.example.com/boat.png"),
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, first.ID)
	assert.Equal(t, domain.ExternalImage("https://images.example.com/boat.png"), first.Image)

	second, err := table.Insert(ctx, domain.PromptFields{Body: "a glass city", Categories: []string{"3D"}})
	require.NoError(t, err)

	all, err := table.Select(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)
	assert.True(t, all[1].CreatedAt.Equal(first.CreatedAt))

	updated, err := table.Update(ctx, first.ID, domain.PromptFields{Body: "a paper boat at sea", Categories: []string{"Illustration"}})
	require.NoError(t, err)
	assert.Nil(t, updated.Image)

	require.NoError(t, table.Delete(ctx, second.ID))

	err = table.Delete(ctx, second.ID)
	assert.ErrorIs(t, err, domain.ErrPromptNotFound)
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)

	_, err = table.Update(ctx, uuid.New(), domain.PromptFields{Body: "x", Categories: []string{"Photo"}})
	assert.ErrorIs(t, err, domain.ErrPromptNotFound)
}

func TestPromptTable_ServerValidation(t *testing.T) {
	api := newTestAPI(t)
	table := NewPromptTable(api.client("admin"))

	_, err := table.Insert(context.Background(), domain.PromptFields{Body: "x", Categories: []string{"Sculpture"}})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.HasField("categories"))
}

func TestPromptTable_Authorization(t *testing.T) {
	api := newTestAPI(t)
	fields := domain.PromptFields{Body: "x", Categories: []string{"Photo"}}

	_, err := NewPromptTable(api.client("")).Insert(context.Background(), fields)
	assert.ErrorIs(t, err, domain.ErrAuthRequired)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))

	_, err = NewPromptTable(api.client("viewer")).Insert(context.Background(), fields)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
	assert.Empty(t, api.repo.Prompts)
}

func TestPromptTable_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewPromptTable(New(url)).Select(context.Background())
	var be *domain.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "select", be.Op)
}

// events collects change events delivered on the feed
type events struct {
	mu  sync.Mutex
	got []domain.ChangeEvent
}

func (e *events) add(ev domain.ChangeEvent) {
	e.mu.Lock()
	e.got = append(e.got, ev)
	e.mu.Unlock()
}

func (e *events) snapshot() []domain.ChangeEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.ChangeEvent(nil), e.got...)
}

func TestPromptTable_Subscribe(t *testing.T) {
	api := newTestAPI(t)
	viewer := NewPromptTable(api.client(""))
	admin := NewPromptTable(api.client("admin"))

	var seen events
	sub, err := viewer.Subscribe(context.Background(), seen.add)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return api.hub.ClientCount(websocket.ChannelPrompts) == 1
	}, time.Second, 10*time.Millisecond)

	created, err := admin.Insert(context.Background(), domain.PromptFields{Body: "hello", Categories: []string{"Nano"}})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(seen.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	ev := seen.snapshot()[0]
	assert.Equal(t, domain.ChangeInsert, ev.Type)
	assert.Equal(t, created.ID, ev.ID)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	require.Eventually(t, func() bool {
		return api.hub.ClientCount(websocket.ChannelPrompts) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestPromptTable_SubscribeRejectsBadToken(t *testing.T) {
	api := newTestAPI(t)

	_, err := NewPromptTable(api.client("forged")).Subscribe(context.Background(), func(domain.ChangeEvent) {})
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
}

func TestPromptTable_SubscribeRedials(t *testing.T) {
	api := newTestAPI(t)

	var seen events
	sub, err := NewPromptTable(api.client("")).Subscribe(context.Background(), seen.add)
	require.NoError(t, err)
	defer sub.Close()
	require.Eventually(t, func() bool {
		return api.hub.ClientCount(websocket.ChannelPrompts) == 1
	}, time.Second, 10*time.Millisecond)

	api.hub.CloseAll()

	require.Eventually(t, func() bool {
		for _, ev := range seen.snapshot() {
			if ev.Type == domain.ChangeUpdate && ev.ID == uuid.Nil {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond, "a redial is reported as a catch-up change")
	assert.Eventually(t, func() bool {
		return api.hub.ClientCount(websocket.ChannelPrompts) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPromptTable_SubscribeStopsWithContext(t *testing.T) {
	api := newTestAPI(t)
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := NewPromptTable(api.client("")).Subscribe(ctx, func(domain.ChangeEvent) {})
	require.NoError(t, err)

	cancel()
	done := make(chan struct{})
	go func() {
		sub.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not stop after its context ended")
	}
}

func TestAssetStore_UploadAndDelete(t *testing.T) {
	api := newTestAPI(t)
	assets := NewAssetStore(api.client("admin"))
	data := testPNG(t)

	url, err := assets.Upload(context.Background(), gallery.LocalFile{
		Name:        "/home/me/pictures/ocean.png",
		ContentType: "image/png",
		Size:        int64(len(data)),
		Content:     bytes.NewReader(data),
	})
	require.NoError(t, err)
	assert.Contains(t, url, api.images.BaseURL+"/prompts/")
	assert.Len(t, api.images.Keys(), 2)

	require.NoError(t, assets.Delete(context.Background(), url))
	assert.Empty(t, api.images.Keys())
}

func TestAssetStore_RejectsViewer(t *testing.T) {
	api := newTestAPI(t)
	data := testPNG(t)

	_, err := NewAssetStore(api.client("viewer")).Upload(context.Background(), gallery.LocalFile{
		Name: "ocean.png", Size: int64(len(data)), Content: bytes.NewReader(data),
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Empty(t, api.images.Keys())
}

// TestGallery_OverAPI drives the gallery core against the HTTP surface
func TestGallery_OverAPI(t *testing.T) {
	api := newTestAPI(t)
	c := api.client("admin")
	repo := gallery.NewRepository(NewPromptTable(c), zerolog.Nop())
	pipeline := gallery.NewPipeline(repo,
		gallery.WithAssetStore(NewAssetStore(c)),
		gallery.WithAuthProvider(testutil.NewMockAuthProvider(&domain.User{Subject: "auth0|admin", IsAdmin: true})),
	)
	ctx := context.Background()

	require.NoError(t, repo.Reload(ctx))
	require.NoError(t, repo.Subscribe(ctx))
	defer repo.Unsubscribe()

	data := testPNG(t)
	created, err := pipeline.Create(ctx, gallery.Input{
		Body:       "deep sea lantern fish",
		Categories: []string{"Photo"},
		Image: gallery.UploadImage(gallery.LocalFile{
			Name: "fish.png", ContentType: "image/png", Size: int64(len(data)), Content: bytes.NewReader(data),
		}),
	})
	require.NoError(t, err)
	require.True(t, created.Image.OwnsAsset())

	snap := repo.Snapshot()
	require.Len(t, snap.Records, 1)

	require.NoError(t, pipeline.Delete(ctx, created.ID))
	assert.Empty(t, repo.Snapshot().Records)
	assert.Empty(t, api.images.Keys(), "owned image released with the record")
}
