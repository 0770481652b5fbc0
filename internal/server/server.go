// Package server provides the HTTP surface of the interchain event
// distributor: Gin-based routing, request logging and recovery middleware,
// Prometheus instrumentation, and graceful shutdown handling.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ied/internal/cache"
	"ied/internal/config"
	"ied/internal/metrics"
	"ied/internal/observability"
	"ied/internal/publisher"
	"ied/internal/registry"
	"ied/internal/replicator"
	"ied/internal/subscription"
)

// Server wires the HTTP surface to the engine's internal components.
type Server struct {
	config     *config.Config
	logger     *zap.Logger
	router     *gin.Engine
	httpServer *http.Server
	metrics    *metrics.Metrics

	cache       cache.Cache
	registry    *registry.Registry
	publisher   *publisher.Publisher
	replicator  *replicator.Replicator
	subscribers *subscription.Manager
	health      *observability.HealthChecker
	startedAt   time.Time
}

// Deps bundles the components a Server routes requests to.
type Deps struct {
	Cache       cache.Cache
	Registry    *registry.Registry
	Publisher   *publisher.Publisher
	Replicator  *replicator.Replicator
	Subscribers *subscription.Manager
	Metrics     *metrics.Metrics
	Health      *observability.HealthChecker
}

// New builds a Server with routes and middleware installed.
func New(cfg *config.Config, logger *zap.Logger, deps Deps) *Server {
	if cfg == nil {
		panic("config cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	if deps.Health != nil && deps.Cache != nil {
		deps.Health.RegisterHealthCheck("redis", observability.RedisHealthCheck(deps.Cache.Ping))
	}

	s := &Server{
		config:      cfg,
		logger:      logger,
		router:      router,
		metrics:     deps.Metrics,
		cache:       deps.Cache,
		registry:    deps.Registry,
		publisher:   deps.Publisher,
		replicator:  deps.Replicator,
		subscribers: deps.Subscribers,
		health:      deps.Health,
		startedAt:   time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(s.recoveryMiddleware())
	s.router.Use(s.loggingMiddleware())
}

// Router exposes the underlying Gin engine, primarily for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start begins serving HTTP traffic. It blocks until the listener stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Server.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	s.logger.Info("starting HTTP server", zap.String("address", addr))
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server, waiting for in-flight handlers
// up to the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Info("initiating graceful shutdown", zap.Duration("timeout", timeout))
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("server shutdown complete")
	return nil
}

func (s *Server) recoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered",
					zap.Any("error", err),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		s.logger.Info("http request",
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

