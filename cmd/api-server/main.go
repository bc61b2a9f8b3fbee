package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lgulliver/filehold/internal/audit"
	"github.com/lgulliver/filehold/internal/auth"
	"github.com/lgulliver/filehold/internal/common"
	"github.com/lgulliver/filehold/internal/documents"
	"github.com/lgulliver/filehold/internal/storage"
	"github.com/lgulliver/filehold/internal/upload"
	"github.com/lgulliver/filehold/pkg/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg := config.LoadFromEnv()

	// Setup logging
	cfg.Logging.SetupLogging()

	log.Info().Msg("Starting Filehold API server")

	// Initialize database
	db, err := common.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Initialize cache
	cache, err := common.NewCache(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer cache.Close()

	// Initialize storage
	blobStorage, err := storage.NewBlobStorage(&cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}

	// Initialize services
	authService := auth.NewService(db, cache, &cfg.Auth)
	documentRepo := documents.NewRepository(db)
	auditService := audit.NewService(db)
	validator := upload.NewAdmissionValidator(&cfg.Quota, documentRepo)
	postProcessor := upload.NewPostProcessor()
	engine := upload.NewEngine(db, blobStorage, documentRepo, auditService, validator, cfg.Upload.Expiration, postProcessor)

	// Background expiry sweep
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go upload.NewSweeper(engine, cfg.Upload.SweepInterval).Run(sweepCtx)

	// Setup HTTP server
	router := setupRouter(authService, engine, documentRepo, auditService, blobStorage, cfg.Upload.ChunkSize)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", server.Addr).Msg("Starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	stopSweep()

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	} else {
		log.Info().Msg("Server shutdown complete")
	}
}

func setupRouter(authService *auth.Service, engine *upload.Engine, documentRepo *documents.Repository, auditService *audit.Service, blobStorage storage.BlobStorage, maxChunkSize int64) *gin.Engine {
	// Set Gin mode based on environment
	if zerolog.GlobalLevel() == zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "filehold-api-server",
			"time":    time.Now().UTC(),
		})
	})

	// API routes
	api := router.Group("/api/v1")
	{
		// Authentication routes
		authRoutes := api.Group("/auth")
		{
			authRoutes.POST("/register", handleRegister(authService))
			authRoutes.POST("/login", handleLogin(authService))
		}

		// Resumable upload session routes
		uploads := api.Group("/uploads")
		uploads.Use(authMiddleware(authService))
		{
			uploads.POST("", handleCreateUpload(engine))
			uploads.HEAD("/:id", handleUploadHead(engine))
			uploads.GET("/:id", handleUploadStatus(engine))
			uploads.PATCH("/:id", handleAppendChunk(engine, maxChunkSize))
			uploads.POST("/:id/finalize", handleFinalizeUpload(engine))
			uploads.DELETE("/:id", handleCancelUpload(engine))
		}

		// Document and folder routes
		docs := api.Group("/documents")
		docs.Use(authMiddleware(authService))
		{
			docs.GET("/:id", handleGetDocument(documentRepo))
			docs.GET("/:id/download", handleDownloadDocument(documentRepo, blobStorage))
			docs.GET("/:id/audit", handleDocumentAudit(documentRepo, auditService))
			docs.DELETE("/:id", handleDeleteDocument(documentRepo, auditService, blobStorage))
		}

		folders := api.Group("/folders")
		folders.Use(authMiddleware(authService))
		{
			folders.POST("", handleCreateFolder(documentRepo, auditService))
		}
	}

	return router
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Upload-Length, Upload-Offset, Upload-Metadata, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE, HEAD")
		c.Header("Access-Control-Expose-Headers", "Location, Upload-Offset, Upload-Length, Upload-Expires")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
