package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/adamscao/ealicense/internal/api/handlers"
	"github.com/adamscao/ealicense/internal/api/middleware"
	"github.com/adamscao/ealicense/internal/config"
	"github.com/adamscao/ealicense/internal/metrics"
)

// Dependencies are the collaborators the HTTP surface needs.
// Webhook is nil unless the bot runs in webhook mode. Logger and Metrics
// default to a no-op logger and a fresh registry.
type Dependencies struct {
	Verifier handlers.Verifier
	Licenses handlers.LicenseLister
	Webhook  handlers.UpdateHandler
	Metrics  *metrics.Registry
	Logger   *zap.Logger
}

// Server represents the HTTP server
type Server struct {
	router *gin.Engine
	config *config.Config
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	// Set Gin mode
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "http"))

	if deps.Metrics == nil {
		deps.Metrics = metrics.NewRegistry()
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics(deps.Metrics))

	// Create handlers
	verifyHandler := handlers.NewVerifyHandler(deps.Verifier, deps.Metrics, logger)
	adminHandler := handlers.NewAdminHandler(deps.Licenses, logger)

	// License verification for the EA
	verify := []gin.HandlerFunc{verifyHandler.Verify}
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
		verify = append([]gin.HandlerFunc{limiter.Middleware()}, verify...)
	}
	router.GET("/verify", verify...)

	// Telegram webhook delivery
	if deps.Webhook != nil {
		webhookHandler := handlers.NewWebhookHandler(deps.Webhook, cfg.Telegram.WebhookSecret, logger)
		router.POST(config.WebhookPath, webhookHandler.Receive)
		router.POST(config.WebhookPath+"/:secret", webhookHandler.Receive)
	}

	// API v1 routes
	v1 := router.Group("/v1")
	{
		// Admin endpoints (require admin token)
		if cfg.Admin.Token != "" {
			admin := v1.Group("/admin")
			admin.Use(middleware.AdminAuth(cfg.Admin.Token))
			{
				admin.GET("/licenses", adminHandler.ListLicenses)
			}
		}
	}

	// Health check
	router.GET("/health", handlers.Health)

	// Prometheus exposition
	router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	return &Server{
		router: router,
		config: cfg,
	}
}

// HTTPServer wraps the router in an *http.Server bound to the configured
// address, ready for graceful shutdown
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.config.Server.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Router returns the underlying Gin router
func (s *Server) Router() *gin.Engine {
	return s.router
}
