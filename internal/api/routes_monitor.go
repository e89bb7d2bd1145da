package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/energizer-project/sourcequery/internal/config"
	intnet "github.com/energizer-project/sourcequery/internal/network"
	"github.com/energizer-project/sourcequery/internal/protocol"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
	adHocQueryTimeout   = 15 * time.Second
)

// handleGetTargets returns the latest state of every monitored target.
func (s *Server) handleGetTargets(c *gin.Context) {
	states := s.opts.Monitor.States()

	online := 0
	for _, st := range states {
		if st.Online() {
			online++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"targets": states,
		"total":   len(states),
		"online":  online,
	})
}

// handleGetTarget returns the state of one monitored target.
func (s *Server) handleGetTarget(c *gin.Context) {
	address := c.Param("address")
	state, ok := s.opts.Monitor.State(address)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "target not found"})
		return
	}
	c.JSON(http.StatusOK, state)
}

// handleGetHistory returns recorded snapshots for an address, newest first.
func (s *Server) handleGetHistory(c *gin.Context) {
	if s.opts.History == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history is not available"})
		return
	}

	address := c.Param("address")
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	snapshots, err := s.opts.History.History(c.Request.Context(), address, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("address", address).Msg("history lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history lookup failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":   address,
		"snapshots": snapshots,
		"count":     len(snapshots),
	})
}

type queryRequest struct {
	Address string `json:"address" binding:"required"`
}

// handleQuery runs a live A2S_INFO query against any address.
func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be {\"address\": \"host:port\"}"})
		return
	}
	if err := config.ValidateAddress(req.Address); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), adHocQueryTimeout)
	defer cancel()

	info, err := s.opts.Monitor.QueryNow(ctx, req.Address)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, intnet.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		c.JSON(status, gin.H{
			"address": req.Address,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address": req.Address,
		"engine":  info.Engine(),
		"rtt_ms":  float64(info.RTT().Microseconds()) / 1000,
		"info":    info,
		"summary": protocol.Summarize(info),
	})
}
