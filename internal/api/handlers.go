package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zeroshot-dev/zeroshot/pkg/orchestrator"
)

// listClustersHandler handles GET /api/v1/clusters.
func (s *Server) listClustersHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"clusters": s.orch.ListClusters()})
}

// getClusterHandler handles GET /api/v1/clusters/:id.
func (s *Server) getClusterHandler(c *gin.Context) {
	status, err := s.orch.GetStatus(c.Param("id"))
	if err != nil {
		writeClusterError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// exportClusterHandler handles GET /api/v1/clusters/:id/export.
//
// Optional query parameter: ?format=markdown (the only supported format;
// defaults to markdown when omitted).
func (s *Server) exportClusterHandler(c *gin.Context) {
	format := c.DefaultQuery("format", "markdown")
	doc, err := s.orch.Export(c.Param("id"), format)
	if err != nil {
		writeClusterError(c, err)
		return
	}
	c.String(http.StatusOK, doc)
}

func writeClusterError(c *gin.Context, err error) {
	if errors.Is(err, orchestrator.ErrClusterNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
