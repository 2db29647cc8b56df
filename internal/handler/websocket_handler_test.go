package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/promptgallery/gallery-backend/internal/domain"
	"github.com/promptgallery/gallery-backend/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockJWTValidator is a test double for JWT validation
type mockJWTValidator struct {
	user *domain.User
	err  error
}

func (m *mockJWTValidator) ValidateToken(ctx context.Context, token string) (*domain.User, error) {
	return m.user, m.err
}

var testAllowedOrigins = []string{"http://localhost:3000", "https://prompt-gallery.app"}

func TestWebSocketHandler_HandleWS_InvalidToken(t *testing.T) {
	e := echo.New()
	hub := websocket.NewHub()
	h := NewWebSocketHandler(hub, &mockJWTValidator{err: errors.New("expired")}, testAllowedOrigins)

	req := httptest.NewRequest(http.MethodGet, "/ws?token=invalid-jwt", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.HandleWS(c)

	var httpErr *echo.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	assert.Equal(t, 0, hub.TotalClientCount())
}

func TestWebSocketHandler_HandleWS_AnonymousNoUpgrade(t *testing.T) {
	e := echo.New()
	h := NewWebSocketHandler(websocket.NewHub(), nil, testAllowedOrigins)

	// no token is fine; the plain GET then fails the upgrade, not auth
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.HandleWS(c)
	assert.Error(t, err)
	var httpErr *echo.HTTPError
	assert.False(t, errors.As(err, &httpErr) && httpErr.Code == http.StatusUnauthorized)
}

func TestWebSocketHandler_CheckOrigin(t *testing.T) {
	h := NewWebSocketHandler(websocket.NewHub(), nil, testAllowedOrigins)

	tests := []struct {
		name     string
		origin   string
		expected bool
	}{
		{"allowed origin", "http://localhost:3000", true},
		{"allowed origin https", "https://prompt-gallery.app", true},
		{"disallowed origin", "https://evil.com", false},
		{"empty origin (cli)", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.expected, h.checkOrigin(req))
		})
	}
}

func TestWebSocketHandler_DeliversChanges(t *testing.T) {
	hub := websocket.NewHub()
	defer hub.CloseAll()
	viewer := &domain.User{Subject: "auth0|viewer"}
	h := NewWebSocketHandler(hub, &mockJWTValidator{user: viewer}, testAllowedOrigins)

	e := echo.New()
	e.GET("/ws", h.HandleWS)
	srv := httptest.NewServer(e)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=viewer-token"
	conn, _, err := ws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return hub.ClientCount(websocket.ChannelPrompts) == 1
	}, time.Second, 10*time.Millisecond)

	id := uuid.New()
	hub.Publish(websocket.ChannelPrompts, websocket.PromptDeleted(id))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "prompts.deleted", msg["type"])

	change, err := websocket.ParseChange(data)
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeDelete, change.Type)
	assert.Equal(t, id, change.ID)
}
