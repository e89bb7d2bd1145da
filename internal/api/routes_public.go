package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/energizer-project/sourcequery/internal/util"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "sourcequery",
		"version": s.opts.Version,
	})
}

// handleGetSystem returns host information and resource usage.
func (s *Server) handleGetSystem(c *gin.Context) {
	ctx := c.Request.Context()
	c.JSON(http.StatusOK, gin.H{
		"host": util.GetHostInfo(ctx),
		"load": util.GetHostLoad(ctx, 0, s.opts.DiskPath),
	})
}
