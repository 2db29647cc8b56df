package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/promptgallery/gallery-backend/internal/config"
	"github.com/promptgallery/gallery-backend/internal/domain"
	"github.com/promptgallery/gallery-backend/internal/handler"
	"github.com/promptgallery/gallery-backend/internal/metrics"
	"github.com/promptgallery/gallery-backend/internal/middleware"
	"github.com/promptgallery/gallery-backend/internal/repository/postgres"
	"github.com/promptgallery/gallery-backend/internal/repository/storage"
	"github.com/promptgallery/gallery-backend/internal/service"
	"github.com/promptgallery/gallery-backend/internal/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	echoSwagger "github.com/swaggo/echo-swagger"
	"golang.org/x/sync/errgroup"
)

// @title Prompt Gallery API
// @version 1.0
// @description Public prompt gallery with admin-only curation and a realtime change feed.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Auth0 access token as "Bearer <token>".
func main() {
	// Initialize zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	// Verify database connection
	if err := pool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Connected to database")

	// Initialize repositories
	promptRepo := postgres.NewPromptRepository(pool)
	if err := promptRepo.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare prompts table")
	}
	apiTokenRepo := postgres.NewAPITokenRepository(pool)
	if err := apiTokenRepo.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare api_tokens table")
	}

	var imageRepo storage.ImageRepository
	if cfg.S3.Enabled() {
		s3Repo, err := storage.NewS3ImageRepository(ctx, cfg.S3)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize S3 storage")
		}
		imageRepo = s3Repo
		log.Info().Str("bucket", cfg.S3.Bucket).Msg("Image storage enabled")
	} else {
		log.Warn().Msg("S3_BUCKET or S3_PUBLIC_BASE_URL not set; image uploads disabled")
	}

	// Initialize services
	promptService := service.NewPromptService(promptRepo)
	var imageService *service.ImageService
	if imageRepo != nil {
		imageService = service.NewImageService(imageRepo, cfg.MaxUploadBytes)
	}

	// Realtime: local hub, fanned out through redis when configured
	hub := websocket.NewHub()
	var relay *websocket.RedisRelay
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid REDIS_URL")
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ping redis")
		}
		relay = websocket.NewRedisRelay(rdb, hub, "")
		promptService.SetEventPublisher(relay)
	} else {
		promptService.SetEventPublisher(hub)
	}

	// Initialize auth middleware
	admins := domain.NewAdminList(cfg.AdminEmails)
	if len(admins) == 0 {
		log.Warn().Msg("ADMIN_EMAILS is empty; nobody can modify the gallery")
	}
	jwtAuth, err := middleware.NewAuthMiddleware(cfg.Auth0Domain, cfg.Auth0Audience, admins)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create auth middleware")
	}
	apiTokenService := service.NewAPITokenService(apiTokenRepo)
	authMiddleware := middleware.NewDualAuthMiddleware(jwtAuth, middleware.NewAPITokenAuthMiddleware(apiTokenService, admins))
	rateLimiter := middleware.NewRateLimiterWithConfig(cfg.RateLimitPerMinute, cfg.RateLimitPerMinute/3+1)
	defer rateLimiter.Stop()

	// Initialize handlers
	authHandler := handler.NewAuthHandler()
	promptHandler := handler.NewPromptHandler(promptService)
	imageHandler := handler.NewImageHandler(imageService)
	apiTokenHandler := handler.NewAPITokenHandler(apiTokenService)
	wsHandler := handler.NewWebSocketHandler(hub, websocket.NewAuth0JWTValidator(jwtAuth.Validator(), admins), cfg.CORSOrigins)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Request ID middleware
	e.Use(echomiddleware.RequestID())

	// CORS middleware
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Security headers middleware (helmet-like)
	e.Use(echomiddleware.SecureWithConfig(echomiddleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		HSTSMaxAge:         31536000,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))

	// Request logging and metrics
	e.Use(zerologMiddleware())
	e.Use(metrics.Middleware())

	// Recovery middleware
	e.Use(echomiddleware.Recover())

	// Health check endpoint
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/swagger/*", echoSwagger.WrapHandler)
	e.GET("/openapi.json", handler.ServeOpenAPI3Spec)

	// Register API routes
	handler.RegisterRoutes(e, authMiddleware, rateLimiter, authHandler, promptHandler, imageHandler, apiTokenHandler, wsHandler)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if relay != nil {
		g.Go(func() error {
			return relay.Run(gctx)
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		hub.CloseAll()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Server stopped with error")
	}

	log.Info().Msg("Server exited")
}

// zerologMiddleware returns a middleware that logs requests using zerolog
func zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			log.Info().
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", res.Status).
				Dur("latency", time.Since(start)).
				Str("request_id", res.Header().Get(echo.HeaderXRequestID)).
				Msg("request")

			return nil
		}
	}
}
