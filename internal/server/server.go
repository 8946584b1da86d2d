package server

import (
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/chew-z/vision-dispatch/internal/api"
	"github.com/chew-z/vision-dispatch/internal/config"
	"github.com/chew-z/vision-dispatch/internal/dispatch"
	"github.com/chew-z/vision-dispatch/internal/logging"
	"github.com/chew-z/vision-dispatch/internal/metrics"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Version is reported by /api/version
const Version = "0.1.0"

// RequestIDHeader carries the per-request correlation ID
const RequestIDHeader = "X-Request-ID"

//go:embed templates/index.html
var indexHTML string

// Server represents the HTTP server
type Server struct {
	config     *config.Config
	router     *gin.Engine
	server     *http.Server
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, host string, port int) *Server {
	// Set Gin mode based on config
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
		gin.DisableConsoleColor()
	}

	logger := slog.Default()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID(logger))
	router.Use(metrics.Middleware())
	router.Use(corsMiddleware(cfg.AllowedOrigins))

	// Add logger middleware in debug mode
	if cfg.Debug {
		router.Use(gin.Logger())
	}

	if cfg.MaxUploadBytes > 0 {
		router.MaxMultipartMemory = cfg.MaxUploadBytes
	}
	router.SetHTMLTemplate(template.Must(template.New("index.html").Parse(indexHTML)))

	srv := &http.Server{
		Addr:              getAddr(host, port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	server := &Server{
		config:     cfg,
		router:     router,
		server:     srv,
		dispatcher: dispatch.NewFromConfig(cfg, logger),
		logger:     logger,
	}

	server.setupRoutes()

	return server
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// CreateShutdownContext creates a context for graceful shutdown
func CreateShutdownContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// setupRoutes sets up all the routes for the server
func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleIndex)
	s.router.POST("/upload_and_query", s.handleUploadAndQuery)

	s.router.GET("/api/backends", s.handleBackends)
	s.router.GET("/api/version", s.handleVersion)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/healthz", s.handleHealth)

	s.router.NoRoute(func(c *gin.Context) {
		handleError(c, api.ErrNotFound("route not found"))
	})
}

// getAddr returns the address string from host and port
func getAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}

// requestID tags each request with an ID and a logger that carries it
func requestID(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)

		ctx := logging.WithContext(c.Request.Context(), logger.With("request_id", id))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		return cors.Default()
	}
	cfg := cors.DefaultConfig()
	cfg.AllowOrigins = origins
	cfg.ExposeHeaders = []string{RequestIDHeader}
	return cors.New(cfg)
}

// handleHealth is a simple health check endpoint
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}
