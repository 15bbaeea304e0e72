package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/veritas/backend/internal/api/handlers"
	"github.com/veritas/backend/internal/app"
	"github.com/veritas/backend/internal/metrics"
	"github.com/veritas/backend/internal/middleware/ratelimit"
	"github.com/veritas/backend/internal/middleware/security"
	"github.com/veritas/backend/internal/middleware/validation"
	"github.com/veritas/backend/pkg/config"
	appLogger "github.com/veritas/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Veritas API Server")

	metrics.Init()

	services, err := app.NewServices(cfg)
	if err != nil {
		appLogger.Fatal("Failed to build services", zap.Error(err))
	}
	defer services.Close()

	if err := services.Tools.Check(); err != nil {
		appLogger.Warn("Video analysis unavailable", zap.Error(err))
	}

	fiberApp := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	fiberApp.Use(recover.New())
	fiberApp.Use(security.RequestID())
	fiberApp.Use(logger.New(logger.Config{
		Format: "${time} ${locals:request_id} ${status} - ${latency} ${method} ${path}\n",
	}))
	fiberApp.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID, X-Request-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	fiberApp.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: strings.Split(cfg.Server.AllowOrigins, ","),
		IsDevelopment:  cfg.Server.IsDevelopment,
	}))

	fiberApp.Get("/metrics", metrics.MetricsHandler())

	api := fiberApp.Group("/api/v1")

	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(ratelimit.Config{
			MaxRequestsPerMinute: cfg.RateLimit.MaxRequestsPerMinute,
			Burst:                cfg.RateLimit.Burst,
			Logger:               appLogger.GetLogger(),
		})
		defer limiter.Stop()
		api.Use(limiter.Middleware())
	}

	api.Use(validation.Middleware(validation.Config{
		Logger: appLogger.GetLogger(),
	}))

	limits := handlers.MediaLimits{
		MaxImageBytes: cfg.Media.MaxImageBytes,
		MaxVideoBytes: cfg.Media.MaxVideoBytes,
	}
	videoHandler := handlers.NewVideoHandler(services.Detector, services.Fetcher, limits, handlers.StrideLimits{
		Default: cfg.Video.DefaultStride,
		Max:     cfg.Video.MaxStride,
	})

	// A nil *Client must not become a non-nil TallySource.
	var tallies handlers.TallySource
	if services.Tallies != nil {
		tallies = services.Tallies
	}

	handlers.Handlers{
		Claims:    handlers.NewClaimHandler(services.Verifier),
		Images:    handlers.NewImageHandler(services.Detector, services.Fetcher, limits),
		Videos:    videoHandler,
		WebSocket: handlers.NewWebSocketHandler(videoHandler),
		Stats:     handlers.NewStatsHandler(tallies),
	}.Register(api)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := fiberApp.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := fiberApp.ShutdownWithTimeout(30 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
