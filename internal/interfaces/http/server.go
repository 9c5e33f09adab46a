// Package http exposes the workflow operations over a JSON API.
// Handlers only translate requests; all decisions live in the application layer.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/garyjia/quotation-workflow/internal/application/service"
	appwf "github.com/garyjia/quotation-workflow/internal/application/workflow"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server is the HTTP server adapter
type Server struct {
	config       ServerConfig
	httpServer   *http.Server
	router       *gin.Engine
	orchestrator appwf.Orchestrator
	approvals    service.ApprovalGate
	revisions    service.RevisionLoop
	deadLetters  service.DeadLetterAdmin
	logger       Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(
	config ServerConfig,
	orchestrator appwf.Orchestrator,
	approvals service.ApprovalGate,
	revisions service.RevisionLoop,
	deadLetters service.DeadLetterAdmin,
	logger Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config:       config,
		router:       gin.New(),
		orchestrator: orchestrator,
		approvals:    approvals,
		revisions:    revisions,
		deadLetters:  deadLetters,
		logger:       logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery(), requestID(), s.accessLog())
}

// requestID propagates the caller's X-Request-ID or mints one. Handlers pass
// it on as the correlation id of the events a request causes.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		kv := []interface{}{
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"request_id", c.GetString(requestIDKey),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			s.logger.Error("HTTP request failed", kv...)
			return
		}
		s.logger.Info("HTTP request", kv...)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.orchestrator, s.approvals, s.revisions, s.deadLetters, s.logger)

	s.router.GET("/health", handlers.HealthCheck)

	api := s.router.Group("/api")
	{
		// Quotation workflows
		api.POST("/quotations", handlers.StartWorkflow)
		api.GET("/quotations/:id/workflow", handlers.GetWorkflow)
		api.POST("/quotations/:id/events", handlers.ProgressWorkflow)
		api.POST("/quotations/:id/approval", handlers.RecordDecision)
		api.POST("/quotations/:id/edited", handlers.MarkEdited)

		// Failed side effects
		api.GET("/dead-letters", handlers.ListDeadLetters)
		api.POST("/dead-letters/:id/retry", handlers.RetryDeadLetter)
	}
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// RegisterWebhook mounts an inbound callback handler outside the /api group
func (s *Server) RegisterWebhook(path string, handler gin.HandlerFunc) {
	s.router.POST(path, handler)
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
