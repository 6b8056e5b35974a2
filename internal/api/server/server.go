package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/leadfoundry/lf-ingestor/internal/api/middleware"
	"github.com/leadfoundry/lf-ingestor/internal/api/rest"
	"github.com/leadfoundry/lf-ingestor/internal/cache"
	"github.com/leadfoundry/lf-ingestor/internal/ingest"
	"github.com/leadfoundry/lf-ingestor/internal/logger"
	"github.com/leadfoundry/lf-ingestor/internal/store"
)

// Config holds the server configuration
type Config struct {
	Debug         bool
	Host          string
	Port          int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	WebhookSecret string
}

// Server wraps the HTTP server
type Server struct {
	config      Config
	coordinator *ingest.Coordinator
	reader      *cache.LeadReader
	store       store.Store
	httpServer  *http.Server
}

// New creates a new API server
func New(cfg Config, coordinator *ingest.Coordinator, reader *cache.LeadReader, st store.Store) *Server {
	return &Server{
		config:      cfg,
		coordinator: coordinator,
		reader:      reader,
		store:       st,
	}
}

// Start initializes and starts the HTTP server
func (s *Server) Start() error {
	// Set Gin mode based on debug flag
	if s.config.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create Gin router
	router := gin.New()

	// Setup middleware
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.SetupCORS())

	// Create REST handler
	restHandler := rest.NewHandler(s.coordinator, s.reader, s.store, s.config.WebhookSecret)

	// Setup REST routes
	rest.SetupRoutes(router, restHandler)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	logger.Info("Starting API server",
		zap.String("address", addr),
	)

	// Start server
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Shutting down API server")

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}

	return nil
}
