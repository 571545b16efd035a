// Package api serves the scoring, benchmark and issue services over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/facility-ops/riskwatch/internal/domain"
	"github.com/facility-ops/riskwatch/internal/middleware"
	"github.com/facility-ops/riskwatch/internal/service"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Services are the backends the HTTP handlers call into.
type Services struct {
	Assessments *service.AssessmentService
	Benchmarks  *service.BenchmarkService
	Issues      *service.IssueService
	Store       domain.Store
	Clock       clockwork.Clock
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	logger        *logrus.Logger
	router        *gin.Engine
	server        *http.Server
	svc           Services
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, svc Services, logger *logrus.Logger) *Server {
	cfg := configManager.GetConfig()

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if svc.Clock == nil {
		svc.Clock = clockwork.NewRealClock()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.Server.CORSOrigins))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst).Middleware())
	}

	server := &Server{
		configManager: configManager,
		logger:        logger,
		router:        router,
		svc:           svc,
	}

	server.setupRoutes()

	return server
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/rules", s.handleListRules)
		v1.GET("/rules/:id", s.handleGetRule)
		v1.POST("/score", s.handleScore)

		v1.POST("/assessments", s.handleRecordAssessment)
		v1.GET("/assessments/:id", s.handleGetAssessment)
		v1.GET("/subjects/:subject/assessments", s.handleSubjectHistory)
		v1.GET("/subjects/:subject/assessments/latest", s.handleSubjectLatest)

		v1.GET("/benchmarks", s.handleListStandards)
		v1.POST("/benchmarks/classify", s.handleClassifyBenchmark)
		v1.POST("/benchmarks/compare", s.handleCompareBenchmarks)

		v1.POST("/deadlines/evaluate", s.handleEvaluateDeadline)

		v1.POST("/issues", s.handleReportIssue)
		v1.GET("/issues", s.handleListIssues)
		v1.POST("/issues/sweep", s.handleSweep)
		v1.GET("/issues/:id", s.handleGetIssue)
		v1.POST("/issues/:id/resolve", s.handleResolveIssue)
		v1.GET("/escalation-policies", s.handleListPolicies)
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{
		"status":    "healthy",
		"timestamp": s.svc.Clock.Now().UTC().Format(time.RFC3339),
		"version":   Version,
	}

	if err := s.svc.Store.Health(c.Request.Context()); err != nil {
		s.logger.WithError(err).Warn("Store health check failed")
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
		body["store"] = err.Error()
	}

	c.JSON(status, body)
}
