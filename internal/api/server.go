// Package api provides the engine's read-only HTTP introspection surface:
// GET /api/v1/clusters, GET /api/v1/clusters/:id and
// GET /api/v1/clusters/:id/export, plus GET /health. Every
// orchestration decision is made in-process by pkg/orchestrator; this is a
// thin reporting layer for an out-of-process TUI or dashboard.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zeroshot-dev/zeroshot/pkg/orchestrator"
	"github.com/zeroshot-dev/zeroshot/pkg/version"
)

// Server is the HTTP introspection server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	orch       *orchestrator.Orchestrator
}

// NewServer creates a new API server wired to orch.
func NewServer(orch *orchestrator.Orchestrator) *Server {
	e := gin.New()
	e.Use(gin.Recovery())

	s := &Server{engine: e, orch: orch}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.healthHandler)

	v1 := s.engine.Group("/api/v1")
	v1.GET("/clusters", s.listClustersHandler)
	v1.GET("/clusters/:id", s.getClusterHandler)
	v1.GET("/clusters/:id/export", s.exportClusterHandler)
}

// Start starts the HTTP server listening on addr.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.engine}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"version":  version.Full(),
		"clusters": len(s.orch.ListClusters()),
	})
}
