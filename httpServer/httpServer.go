package httpServer

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"rapidcast/internal/auth"
	"rapidcast/internal/metrics"
	"rapidcast/internal/session"
	"rapidcast/pkg/models"
)

// SessionController is the part of the session controller the API drives.
type SessionController interface {
	Start(cfg models.CaptureConfig, token string) error
	Stop()
	IsStreaming() bool
	Info() models.SessionInfo
}

// Options configures the HTTP server.
type Options struct {
	Defaults models.CaptureConfig // fills fields a start request leaves at zero
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer // served on /metrics when set
	Events   *Broadcaster        // served on /api/v1/events when set
	Logger   logrus.FieldLogger
}

// Server wraps the HTTP server with dependencies
type Server struct {
	router      *gin.Engine
	controller  SessionController
	authManager *auth.Manager
	opts        Options
	log         logrus.FieldLogger
}

// New creates a new HTTP server
func New(controller SessionController, authManager *auth.Manager, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		controller:  controller,
		authManager: authManager,
		opts:        opts,
		log:         logger.WithField("component", "http"),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger(), s.metricsMiddleware())

	api := router.Group("/api")
	{
		api.GET("/ping", s.handlePing)
		api.POST("/v1/authorize", s.handleAuthorize)
		api.DELETE("/v1/authorize/:token", s.handleRevoke)
		api.GET("/v1/session", s.handleGetSession)
		api.POST("/v1/session/start", s.handleStart)
		api.POST("/v1/session/stop", s.handleStop)
		if s.opts.Events != nil {
			api.GET("/v1/events", s.handleEvents)
		}
	}

	if s.opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))
	}

	s.router = router
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the HTTP server
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

// Middleware

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"client":   c.ClientIP(),
		}).Debug("http request")
	}
}

func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		s.opts.Metrics.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start).Seconds())
	}
}

// Handler implementations

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "pong",
		"time":      time.Now().Unix(),
		"streaming": s.controller.IsStreaming(),
	})
}

func (s *Server) handleAuthorize(c *gin.Context) {
	var req models.AuthorizeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	token, err := s.authManager.IssueToken(req.ExpiresIn, c.ClientIP())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, models.AuthorizeResponse{
		Token:     token.Token,
		ExpiresAt: token.ExpiresAt.Format(time.RFC3339),
	})
}

func (s *Server) handleRevoke(c *gin.Context) {
	s.authManager.RevokeToken(c.Param("token"))
	c.JSON(http.StatusOK, gin.H{"message": "token revoked"})
}

func (s *Server) handleGetSession(c *gin.Context) {
	c.JSON(http.StatusOK, s.controller.Info())
}

func (s *Server) handleStart(c *gin.Context) {
	var req models.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := withDefaults(req.CaptureConfig, s.opts.Defaults)
	if err := s.controller.Start(cfg, req.Token); err != nil {
		s.log.WithError(err).Info("start request failed")
		c.JSON(startErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, s.controller.Info())
}

func (s *Server) handleStop(c *gin.Context) {
	s.controller.Stop()
	c.JSON(http.StatusOK, s.controller.Info())
}

// Helper functions

// startErrorStatus maps a start failure to an HTTP status.
func startErrorStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, session.ErrCaptureUnavailable):
		return http.StatusForbidden
	case errors.Is(err, session.ErrListenFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func withDefaults(cfg, defaults models.CaptureConfig) models.CaptureConfig {
	if cfg.Width == 0 && cfg.Height == 0 {
		cfg.Width, cfg.Height = defaults.Width, defaults.Height
	}
	if cfg.DensityHint == 0 {
		cfg.DensityHint = defaults.DensityHint
	}
	if cfg.BitrateBps == 0 {
		cfg.BitrateBps = defaults.BitrateBps
	}
	if cfg.FrameRateHz == 0 {
		cfg.FrameRateHz = defaults.FrameRateHz
	}
	if cfg.KeyframeIntervalSec == 0 {
		cfg.KeyframeIntervalSec = defaults.KeyframeIntervalSec
	}
	return cfg
}
