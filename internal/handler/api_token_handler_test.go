package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/promptgallery/gallery-backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doJSON(e *echo.Echo, method, path, bearer, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAPITokenHandler_Lifecycle(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/api-tokens", "admin", `{"description":"nightly export"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created domain.CreateAPITokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.True(t, domain.IsAPIToken(created.Token))
	assert.NotEmpty(t, created.Warning)

	rec = doJSON(e, http.MethodGet, "/api/v1/api-tokens", "admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), created.Token, "listings never carry the secret")
	var listed []domain.APITokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed, 2, "the fixture token plus the new one")

	rec = doJSON(e, http.MethodPost, "/api/v1/prompts", created.Token, `{"body":"via token","categories":["Nano"]}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(e, http.MethodDelete, "/api/v1/api-tokens/"+created.ID.String(), "admin", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/v1/prompts", created.Token, `{"body":"after revoke","categories":["Nano"]}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(e, http.MethodDelete, "/api/v1/api-tokens/"+created.ID.String(), "admin", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPITokenHandler_Validation(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/api/v1/api-tokens", "admin", `{"description":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "description")

	rec = doJSON(e, http.MethodPost, "/api/v1/api-tokens", "admin", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(e, http.MethodDelete, "/api/v1/api-tokens/not-a-uuid", "admin", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPITokenHandler_Limit(t *testing.T) {
	e, _ := newTestServer(t)

	// the fixture already holds one token
	for i := 0; i < 9; i++ {
		rec := doJSON(e, http.MethodPost, "/api/v1/api-tokens", "admin", `{"description":"ci"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	rec := doJSON(e, http.MethodPost, "/api/v1/api-tokens", "admin", `{"description":"ci"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Maximum number of API tokens")
}
