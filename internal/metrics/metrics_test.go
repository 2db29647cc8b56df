package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, "success", Outcome(nil))
	assert.Equal(t, "error", Outcome(errors.New("boom")))
}

func TestMiddleware_CountsByRoute(t *testing.T) {
	e := echo.New()
	e.Use(Middleware())
	e.GET("/api/v1/prompts/:id", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})
	e.GET("/missing", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "nope")
	})

	before := testutil.ToFloat64(HTTPRequests.WithLabelValues("/api/v1/prompts/:id", http.MethodGet, "204"))
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/prompts/abc", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
	after := testutil.ToFloat64(HTTPRequests.WithLabelValues("/api/v1/prompts/:id", http.MethodGet, "204"))
	assert.Equal(t, 2.0, after-before)

	before = testutil.ToFloat64(HTTPRequests.WithLabelValues("/missing", http.MethodGet, "404"))
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))
	after = testutil.ToFloat64(HTTPRequests.WithLabelValues("/missing", http.MethodGet, "404"))
	assert.Equal(t, 1.0, after-before)
}
