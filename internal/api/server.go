// Package api is the HTTP surface of the scan orchestrator: the collector
// control endpoints (start/cancel/config/history) and the /tasks/stream
// server-sent-events feed, wired over gin.
package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/eidolon-project/eidolon/internal/auditsink"
	"github.com/eidolon-project/eidolon/internal/bus"
	"github.com/eidolon-project/eidolon/internal/orchestrator"
	"github.com/eidolon-project/eidolon/internal/registry"
	"github.com/eidolon-project/eidolon/internal/store"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server wires the collector/stream HTTP surface to its backing
// collaborators: a Registry for task lifecycle, a Bus for event fan-out, a
// ScanConfigStore for per-user settings, and an Orchestrator to run scans.
type Server struct {
	registry     *registry.Registry
	bus          *bus.Bus
	store        store.ScanConfigStore
	orchestrator *orchestrator.Orchestrator
	audit        auditsink.Sink
	logger       *zap.SugaredLogger
	router       *gin.Engine

	wg sync.WaitGroup // in-flight runScan goroutines, for graceful shutdown
}

// New builds a Server and wires its routes.
func New(
	reg *registry.Registry,
	b *bus.Bus,
	cfgStore store.ScanConfigStore,
	orch *orchestrator.Orchestrator,
	audit auditsink.Sink,
	logger *zap.SugaredLogger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	if audit == nil {
		audit = auditsink.NoopSink{}
	}

	s := &Server{
		registry:     reg,
		bus:          b,
		store:        cfgStore,
		orchestrator: orch,
		audit:        audit,
		logger:       logger,
		router:       gin.New(),
	}

	s.setupRoutes()
	return s
}

// Router returns the gin engine, for wrapping in an *http.Server.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())

	s.router.GET("/health", s.healthHandler)
	s.router.GET("/ready", s.readyHandler)

	collector := s.router.Group("/collector", requireUserID())
	{
		collector.POST("/scan", s.startScanHandler)
		collector.POST("/scan/cancel", s.cancelScanHandler)
		collector.GET("/scan/history", s.scanHistoryHandler)
		collector.GET("/config", s.getConfigHandler)
		collector.PUT("/config", s.putConfigHandler)
	}

	s.router.GET("/tasks/stream", requireUserID(), s.streamHandler)
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "eidolon"})
}

func (s *Server) readyHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready", "running_scans": s.registry.RunningCount()})
}

// Drain requests cancellation of every in-flight task and waits for their
// runScan goroutines to finish publishing their terminal events, up to
// ctx's deadline. Call this before closing the HTTP listener so a
// shutting-down process still emits a `cancelled` event for every scan it
// was running, per the at-least-one-terminal-event guarantee.
func (s *Server) Drain(ctx context.Context) error {
	s.registry.Shutdown()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
