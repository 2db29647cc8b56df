package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/promptgallery/gallery-backend/internal/middleware"
)

// RegisterRoutes sets up all API routes
func RegisterRoutes(e *echo.Echo, authMiddleware *middleware.DualAuthMiddleware, rateLimiter *middleware.RateLimiter, authHandler *AuthHandler, promptHandler *PromptHandler, imageHandler *ImageHandler, apiTokenHandler *APITokenHandler, wsHandler *WebSocketHandler) {
	// Realtime change feed (public)
	e.GET("/ws", wsHandler.HandleWS)

	// API version 1
	api := e.Group("/api/v1")

	// Auth routes (protected)
	auth := api.Group("/auth")
	auth.Use(authMiddleware.Authenticate())
	auth.GET("/me", authHandler.Me)
	auth.POST("/logout", authHandler.Logout)

	// Prompt routes: reads are public, writes need an admin
	prompts := api.Group("/prompts")
	prompts.GET("", promptHandler.ListPrompts)
	prompts.GET("/:id", promptHandler.GetPrompt)

	admin := []echo.MiddlewareFunc{
		authMiddleware.Authenticate(),
		authMiddleware.RequireAdmin(),
		middleware.RateLimitMiddleware(rateLimiter),
	}
	prompts.POST("", promptHandler.CreatePrompt, admin...)
	prompts.PUT("/:id", promptHandler.UpdatePrompt, admin...)
	prompts.DELETE("/:id", promptHandler.DeletePrompt, admin...)

	// Image routes (admin)
	images := api.Group("/images", admin...)
	images.POST("", imageHandler.UploadImage)
	images.DELETE("", imageHandler.DeleteImage)

	// API token management (admin, signed-in session only)
	tokens := api.Group("/api-tokens", authMiddleware.JWTOnly(), authMiddleware.RequireAdmin())
	tokens.POST("", apiTokenHandler.CreateAPIToken)
	tokens.GET("", apiTokenHandler.GetAPITokens)
	tokens.DELETE("/:id", apiTokenHandler.RevokeAPIToken)
}
