package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qrtrack/qr-track/config"
	"github.com/qrtrack/qr-track/internal/cache"
	"github.com/qrtrack/qr-track/internal/filter"
	"github.com/qrtrack/qr-track/internal/handler"
	"github.com/qrtrack/qr-track/internal/keygen"
	"github.com/qrtrack/qr-track/internal/middleware"
	"github.com/qrtrack/qr-track/internal/repository"
	"github.com/qrtrack/qr-track/internal/service"
	"github.com/qrtrack/qr-track/internal/utils"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Snowflake ID source
	ids, err := utils.NewIDSource(cfg.Snowflake.DatacenterID, cfg.Snowflake.WorkerID)
	if err != nil {
		log.Fatalf("Failed to initialize Snowflake: %v", err)
	}

	// Initialize key generator
	gen, err := keygen.New(cfg.KeyGen)
	if err != nil {
		log.Fatalf("Failed to initialize key generator: %v", err)
	}

	// Initialize MySQL registry
	registry, err := repository.NewRegistry(
		cfg.MySQL.DSN(),
		cfg.MySQL.MaxIdleConns,
		cfg.MySQL.MaxOpenConns,
	)
	if err != nil {
		log.Fatalf("Failed to initialize registry: %v", err)
	}
	defer registry.Close()

	// Initialize Redis style cache
	styleCache, err := cache.NewStyleCache(
		cfg.Redis.Addr(),
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Redis.PoolSize,
	)
	if err != nil {
		log.Fatalf("Failed to initialize Redis cache: %v", err)
	}
	defer styleCache.Close()

	// Initialize key filter
	keyFilter := filter.NewKeyFilter(
		cfg.BloomFilter.Capacity,
		cfg.BloomFilter.FalsePositiveRate,
	)

	// Initialize tracker service
	tracker := service.NewTracker(registry, gen, ids, styleCache, keyFilter, cfg.StyleDefaults)

	// Load all existing keys into the filter
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := tracker.WarmKeyFilter(ctx); err != nil {
		log.Printf("Warning: failed to warm key filter: %v", err)
	}

	// Set Gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize Gin router
	router := gin.Default()

	// Build base URL
	baseURL := fmt.Sprintf("http://localhost:%d", cfg.Server.Port)

	// Initialize handler
	qrHandler := handler.NewQRHandler(tracker, baseURL)

	// Rate limit the public redirect and create endpoints
	var limit gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(
			styleCache.Client(),
			cfg.RateLimit.Limit,
			time.Duration(cfg.RateLimit.Window)*time.Second,
		)
		limit = limiter.Middleware()
		log.Printf("Rate limiting enabled: %d requests per %ds", cfg.RateLimit.Limit, cfg.RateLimit.Window)
	} else {
		limit = func(c *gin.Context) { c.Next() }
	}

	// Register routes
	router.GET("/health", qrHandler.HealthCheck)

	qr := router.Group("/qr")
	{
		qr.GET("/:key", limit, qrHandler.Redirect)
		qr.GET("/:key/stats", qrHandler.Stats)
		qr.GET("/:key/data", qrHandler.Data)
		qr.PUT("/:key/style", qrHandler.UpdateStyle)
		qr.POST("/:key/reset", qrHandler.Reset)
		qr.DELETE("/:key", qrHandler.Delete)
	}

	api := router.Group("/api/v1")
	{
		api.POST("/qr", limit, qrHandler.Create)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on port %d...", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with 5 second timeout
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
