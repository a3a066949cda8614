// Package api exposes the learning loop over HTTP: status and history
// for observation, stop and trigger for control. Read endpoints serve
// straight from the stores, so they stay accurate while the loop runs.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/evoo-agent/evoo/pkg/guardrails"
	"github.com/evoo-agent/evoo/pkg/loop"
	"github.com/evoo-agent/evoo/pkg/memory"
)

// Server represents the HTTP observation and control surface.
type Server struct {
	runner      *loop.Runner
	experiences memory.ExperienceStore
	strategies  memory.StrategyStore
	guards      *guardrails.Engine
	logger      *slog.Logger
	engine      *gin.Engine
}

// NewServer creates the API server and registers all routes.
func NewServer(runner *loop.Runner, experiences memory.ExperienceStore, strategies memory.StrategyStore, guards *guardrails.Engine, logger *slog.Logger) *Server {
	s := &Server{
		runner:      runner,
		experiences: experiences,
		strategies:  strategies,
		guards:      guards,
		logger:      logger.With("component", "api"),
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger(), securityHeaders())

	engine.GET("/health", s.health)

	v1 := engine.Group("/api/v1")
	v1.GET("/status", s.status)
	v1.GET("/runs", s.listRuns)
	v1.GET("/summary", s.summary)
	v1.GET("/rankings/:incident_type", s.rankings)
	v1.GET("/guardrails", s.guardrailRules)
	v1.POST("/control/stop", s.stop)
	v1.POST("/control/trigger", s.trigger)

	s.engine = engine
	return s
}

// Handler returns the http.Handler for mounting on an http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// requestLogger logs one line per request.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}

// securityHeaders sets standard security response headers.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}
