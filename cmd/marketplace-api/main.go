package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"carbon-scribe/marketplace/marketplace-backend/internal/auth"
	"carbon-scribe/marketplace/marketplace-backend/internal/certificates"
	"carbon-scribe/marketplace/marketplace-backend/internal/config"
	"carbon-scribe/marketplace/marketplace-backend/internal/events"
	"carbon-scribe/marketplace/marketplace-backend/internal/export"
	"carbon-scribe/marketplace/marketplace-backend/internal/marketplace"
	"carbon-scribe/marketplace/marketplace-backend/internal/storage/memory"
	"carbon-scribe/marketplace/marketplace-backend/internal/storage/postgres"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, relying on process environment")
	}

	// Load configuration
	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Select ledger store
	var store marketplace.Store
	switch cfg.Database.Driver {
	case "postgres":
		pgStore, err := postgres.Open(cfg.Database.GetDatabaseURL())
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		store = pgStore
		logger.Info("Using postgres ledger store",
			zap.String("host", cfg.Database.Host),
			zap.String("database", cfg.Database.DBName))
	default:
		store = memory.NewStore()
		logger.Info("Using in-memory ledger store")
	}

	// Initialize Marketplace Module
	guard := marketplace.NewGuard(cfg.Ledger.DeployerAddress)
	hub := events.NewHub(logger)
	engine := marketplace.NewEngine(store, guard, hub, logger)
	marketplaceHandler := marketplace.NewHandler(engine, cfg.Ledger.TreasuryAddress, logger)

	// Initialize Auth Module
	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL, logger)
	authHandler := auth.NewHandler(authService, logger)

	// Initialize Export + Certificates
	exportHandler := export.NewHandler(export.NewExporter(engine, logger), logger)
	certificateHandler := certificates.NewHandler(certificates.NewGenerator(engine, logger), logger)

	// Setup Router
	if cfg.Logging.Level == "release" || cfg.Logging.Level == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.Default()

	// CORS Middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Register Routes
	auth.RegisterRoutes(router, authHandler)

	api := router.Group("/api/v1")
	api.Use(auth.Middleware(authService))
	{
		marketplaceHandler.RegisterRoutes(api)
		exportHandler.RegisterRoutes(api)
		certificateHandler.RegisterRoutes(api)
		api.GET("/ws", hub.HandleConnection)
	}

	// Health Check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":      "healthy",
			"timestamp":   time.Now(),
			"subscribers": hub.Count(),
		})
	})

	// Start Server
	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen: %s\n", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.Int("port", cfg.Server.Port))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown:", zap.Error(err))
	}
	hub.Close()

	logger.Info("Server exiting")
}
