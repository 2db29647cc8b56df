package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiterWithConfig(10, 5) // 10 per minute, burst of 5
	defer rl.Stop()

	// First 5 requests should be allowed (burst)
	for i := 0; i < 5; i++ {
		if !rl.Allow("sub:auth0|a") {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	// 6th request should be rate limited (exceeded burst)
	if rl.Allow("sub:auth0|a") {
		t.Error("Request 6 should be rate limited")
	}
}

func TestRateLimiter_DifferentCallers(t *testing.T) {
	rl := NewRateLimiterWithConfig(10, 3)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("ip:10.0.0.1") {
			t.Errorf("Caller 1 request %d should be allowed", i+1)
		}
	}
	if rl.Allow("ip:10.0.0.1") {
		t.Error("Caller 1 should be rate limited")
	}

	// Caller 2 should still have its full burst
	for i := 0; i < 3; i++ {
		if !rl.Allow("ip:10.0.0.2") {
			t.Errorf("Caller 2 request %d should be allowed", i+1)
		}
	}
}

func TestRateLimiter_EvictStale(t *testing.T) {
	rl := NewRateLimiterWithConfig(10, 1)
	defer rl.Stop()

	rl.Allow("ip:10.0.0.1")
	if rl.Allow("ip:10.0.0.1") {
		t.Fatal("second request should be limited")
	}

	rl.evictStale(time.Now().Add(LimiterTTL + time.Second))
	if !rl.Allow("ip:10.0.0.1") {
		t.Error("evicted caller should start with a fresh burst")
	}
}

func TestRateLimitMiddleware_KeysBySubject(t *testing.T) {
	e := echo.New()
	rl := NewRateLimiterWithConfig(10, 2) // Small burst for testing
	defer rl.Stop()

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	}

	newCtx := func(subject string) (echo.Context, *httptest.ResponseRecorder) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/prompts", nil)
		req.RemoteAddr = "192.0.2.10:4000"
		if subject != "" {
			req = req.WithContext(context.WithValue(req.Context(), Auth0IDKey, subject))
		}
		rec := httptest.NewRecorder()
		return e.NewContext(req, rec), rec
	}

	// First 2 requests should succeed (burst)
	for i := 0; i < 2; i++ {
		c, rec := newCtx("auth0|admin")
		if err := RateLimitMiddleware(rl)(handler)(c); err != nil {
			t.Fatalf("Request %d: Expected no error, got %v", i+1, err)
		}
		if rec.Code != http.StatusOK {
			t.Errorf("Request %d: Expected status 200, got %d", i+1, rec.Code)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "10" {
			t.Errorf("Request %d: Expected X-RateLimit-Limit 10, got %q", i+1, rec.Header().Get("X-RateLimit-Limit"))
		}
	}

	// 3rd request should be rate limited
	c, rec := newCtx("auth0|admin")
	if err := RateLimitMiddleware(rl)(handler)(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}

	// Same IP without a subject is a different caller
	c, rec = newCtx("")
	if err := RateLimitMiddleware(rl)(handler)(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("Anonymous caller: expected 200, got %d", rec.Code)
	}
}
