package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ConsistentClient/ccsswebsockets/internal/api"
	"github.com/ConsistentClient/ccsswebsockets/internal/cache"
	"github.com/ConsistentClient/ccsswebsockets/internal/config"
	"github.com/ConsistentClient/ccsswebsockets/internal/db"
	"github.com/ConsistentClient/ccsswebsockets/internal/middleware"
	"github.com/ConsistentClient/ccsswebsockets/internal/observability"
	"github.com/ConsistentClient/ccsswebsockets/internal/presence"
	"github.com/ConsistentClient/ccsswebsockets/internal/push"
	"github.com/ConsistentClient/ccsswebsockets/internal/relay"
	"github.com/ConsistentClient/ccsswebsockets/internal/utils"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize OpenTelemetry
	otelCleanup, err := observability.InitOpenTelemetry("chat-relay", "1.0.0")
	if err != nil {
		log.Fatalf("Failed to initialize OpenTelemetry: %v", err)
	}

	// Initialize structured logger
	logger := utils.NewLogger(cfg.LogLevel)
	ctx := context.Background()

	// Initialize database and ensure the schema is current
	database, err := db.New(cfg.DatabaseURL, cfg.DatabaseMinConns, cfg.DatabaseMaxConns)
	if err != nil {
		logger.Fatal(ctx, "Failed to initialize database: %v", err)
	}
	if err := database.Migrate(ctx); err != nil {
		logger.Fatal(ctx, "Failed to migrate schema: %v", err)
	}

	// Initialize cache (Redis)
	redisCache, err := cache.New(cfg.RedisURL)
	if err != nil {
		logger.Fatal(ctx, "Failed to initialize cache: %v", err)
	}
	database.SetCache(redisCache)

	// Initialize the push gateway. The relay stays up without one; offline
	// recipients just do not get pushed.
	var sender relay.Sender
	fcm, err := push.NewFCMGateway(ctx, cfg.FCMCredentialsPath, logger)
	if err != nil {
		logger.Error(ctx, "Push gateway unavailable, continuing without it: %v", err)
		sender = push.Discard{Logger: logger}
	} else {
		sender = fcm
	}

	// Presence registry and relay hub
	registry := presence.NewRegistry()
	hub := relay.NewHub(database, sender, registry, logger)

	// Per-IP connection rate limiting
	rateLimiter := middleware.NewRateLimiter(redisCache.GetClient(), cfg.ConnRateLimitBurst, cfg.ConnRateLimitPerSec)

	// Setup HTTP router (socket listener + health + metrics)
	router := api.NewRouter(database, hub, rateLimiter, logger, cfg)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.ListenAddr + ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  0, // WebSocket connections are long-lived
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info(ctx, "Starting relay on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "Server error: %v", err)
		}
	}()

	// Graceful shutdown setup
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Block until a signal is received
	<-sigChan

	gracefulShutdown(ctx, logger, server, database, redisCache, otelCleanup)

	logger.Info(ctx, "Application stopped.")
}

// gracefulShutdown handles the graceful shutdown of all components
func gracefulShutdown(ctx context.Context, logger *utils.Logger, server *http.Server, database *db.Database, redisCache *cache.Cache, otelCleanup func(context.Context) error) {
	logger.Info(ctx, "Shutting down relay...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// 1. Shut down HTTP server (closes the listener; open sockets terminate
	// with it)
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "HTTP server shutdown error: %v", err)
	} else {
		logger.Info(ctx, "HTTP server stopped.")
	}

	// 2. Close Database connection
	if err := database.Close(); err != nil {
		logger.Error(ctx, "Database close error: %v", err)
	} else {
		logger.Info(ctx, "Database connection closed.")
	}

	// 3. Close Redis cache connection
	if err := redisCache.Close(); err != nil {
		logger.Error(ctx, "Redis cache close error: %v", err)
	} else {
		logger.Info(ctx, "Redis cache connection closed.")
	}

	// 4. Shutdown OpenTelemetry
	if otelCleanup != nil {
		if err := otelCleanup(shutdownCtx); err != nil {
			logger.Error(ctx, "OpenTelemetry shutdown error: %v", err)
		} else {
			logger.Info(ctx, "OpenTelemetry shut down.")
		}
	}

	logger.Info(ctx, "Graceful shutdown complete.")
}
