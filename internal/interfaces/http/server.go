// Package http exposes the orchestrator and the token service over HTTP.
// Handlers translate requests into application calls and map errors onto status codes.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/buffrsign/esign-orchestrator/internal/application/workflow"
	"github.com/buffrsign/esign-orchestrator/internal/auth"
	"github.com/buffrsign/esign-orchestrator/internal/definition"
	"github.com/buffrsign/esign-orchestrator/internal/infrastructure/report"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// HealthChecker reports overall health and per-component details
type HealthChecker func(ctx context.Context) (healthy bool, details interface{})

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// RequireToken protects /api/workflows and /api/steps with access tokens
	RequireToken bool
	// ServiceKey, when set, must be sent as X-Service-Key to issue token pairs
	ServiceKey string
	Version    string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		Version:      "dev",
	}
}

// Dependencies are the application components served over HTTP.
// Tokens, Templates, Exporter and Health are optional.
type Dependencies struct {
	Orchestrator workflow.Orchestrator
	Tokens       *auth.Service
	Templates    *definition.Registry
	Exporter     *report.HistoryExporter
	Health       HealthChecker
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	deps       Dependencies
	logger     Logger
}

// NewServer creates a new HTTP server with the given dependencies
func NewServer(config ServerConfig, deps Dependencies, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	if deps.Templates == nil {
		deps.Templates = definition.NewRegistry()
	}
	if deps.Exporter == nil {
		deps.Exporter = report.NewHistoryExporter(nil)
	}

	server := &Server{
		config: config,
		router: gin.New(),
		deps:   deps,
		logger: logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(corsMiddleware())
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}

func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.deps, s.config.Version, s.logger)

	s.router.GET("/health", handlers.HealthCheck)

	api := s.router.Group("/api")

	protected := api.Group("")
	if s.config.RequireToken {
		protected.Use(requireAccessToken(s.deps.Tokens))
	}
	{
		protected.GET("/templates", handlers.ListTemplates)

		protected.POST("/workflows", handlers.CreateWorkflow)
		protected.GET("/workflows", handlers.ListWorkflows)
		protected.GET("/workflows/:id", handlers.GetWorkflow)
		protected.POST("/workflows/:id/start", handlers.StartWorkflow)
		protected.POST("/workflows/:id/pause", handlers.PauseWorkflow)
		protected.POST("/workflows/:id/resume", handlers.ResumeWorkflow)
		protected.POST("/workflows/:id/cancel", handlers.CancelWorkflow)
		protected.GET("/workflows/:id/history", handlers.GetWorkflowHistory)
		protected.GET("/workflows/:id/history/export", handlers.ExportWorkflowHistory)

		protected.POST("/steps/validate", handlers.ValidateStep)
	}

	if s.deps.Tokens == nil {
		return
	}

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/tokens", requireServiceKey(s.config.ServiceKey), handlers.IssueTokens)
		authGroup.POST("/refresh", handlers.RefreshTokens)
		authGroup.POST("/validate", handlers.ValidateToken)
		authGroup.POST("/revoke", handlers.RevokeToken)

		scoped := authGroup.Group("")
		scoped.Use(requireAccessToken(s.deps.Tokens))
		scoped.POST("/document-tokens", handlers.IssueDocumentToken)
		scoped.POST("/signature-tokens", handlers.IssueSignatureToken)
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
