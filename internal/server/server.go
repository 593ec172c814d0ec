/**
 * HTTP Surface for TradeImport
 *
 * Features:
 * - Queue snapshot, stats, and control endpoints
 * - Server-sent event stream of queue changes
 * - Failed-chunk and reconciliation report downloads
 * - Enqueue of files already on the server's disk
 * - Graceful shutdown bound to a context
 *
 * Author: TradeImport Team
 * Updated: 2025-02-15
 */

package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vishalSecmark/tradewebx-sub002/internal/api"
	"github.com/vishalSecmark/tradewebx-sub002/internal/logger"
	"github.com/vishalSecmark/tradewebx-sub002/internal/queue"
	"github.com/vishalSecmark/tradewebx-sub002/internal/state"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8085"

// ReportLister reads stored reconciliation reports.
type ReportLister interface {
	ListReports(ctx context.Context) ([]*state.ImportReport, error)
	GetReport(ctx context.Context, itemID string) (*state.ImportReport, error)
}

// TargetResolver returns the enabled and all import targets.
type TargetResolver func(ctx context.Context) (enabled, all []api.Target, err error)

// Config holds server settings.
type Config struct {
	Addr            string
	Mode            string
	ShutdownTimeout time.Duration
}

// Server serves the queue over HTTP.
type Server struct {
	config     Config
	queue      *queue.Manager
	reports    ReportLister
	targets    TargetResolver
	logger     *logger.Logger
	engine     *gin.Engine
	httpServer *http.Server
}

// New creates a server and registers its routes.
func New(config Config, q *queue.Manager, reports ReportLister, targets TargetResolver, log *logger.Logger) *Server {
	if config.Addr == "" {
		config.Addr = DefaultAddr
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 5 * time.Second
	}
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	if log == nil {
		log = logger.Nop()
	}

	s := &Server{
		config:  config,
		queue:   q,
		reports: reports,
		targets: targets,
		logger:  log.With("component", "server"),
		engine:  gin.New(),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.routes()

	s.httpServer = &http.Server{
		Addr:              config.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	r := s.engine

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	apiGroup := r.Group("/api")
	{
		q := apiGroup.Group("/queue")
		q.GET("", s.getQueue)
		q.GET("/stats", s.getStats)
		q.GET("/events", s.streamEvents)
		q.POST("/pause", s.pauseQueue)
		q.POST("/resume", s.resumeQueue)
		q.POST("/clear-completed", s.clearCompleted)
		q.POST("/clear", s.clearAll)

		items := apiGroup.Group("/items")
		items.GET("/:id", s.getItem)
		items.POST("/:id/retry", s.retryItem)
		items.DELETE("/:id", s.removeItem)
		items.GET("/:id/failed-chunks.csv", s.failedChunksCSV)
		items.GET("/:id/report.csv", s.itemReportCSV)

		apiGroup.GET("/reports", s.listReports)
		apiGroup.GET("/reports.csv", s.reportsCSV)
		apiGroup.GET("/reports.xlsx", s.reportsXLSX)

		apiGroup.POST("/files", s.addFiles)
	}

	r.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, "route not found")
	})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.LogRequest(c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	// event streams end with ctx
	s.httpServer.BaseContext = func(net.Listener) context.Context { return ctx }

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.config.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
