package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/energizer-project/sourcequery/internal/config"
	"github.com/energizer-project/sourcequery/internal/db"
	"github.com/energizer-project/sourcequery/internal/monitor"
	intnet "github.com/energizer-project/sourcequery/internal/network"
	"github.com/energizer-project/sourcequery/internal/protocol"
	"github.com/energizer-project/sourcequery/internal/util"
)

// TargetMonitor exposes the monitored targets and ad-hoc queries.
type TargetMonitor interface {
	States() []monitor.TargetState
	State(address string) (monitor.TargetState, bool)
	QueryNow(ctx context.Context, address string) (protocol.InfoResult, error)
}

// HistoryStore reads recorded snapshots.
type HistoryStore interface {
	History(ctx context.Context, address string, limit int) ([]db.Snapshot, error)
}

// Options wires the API server to the rest of the service.
type Options struct {
	Config  config.APIConfig
	Debug   bool
	Version string

	Monitor TargetMonitor
	History HistoryStore

	// Metrics, when set, is served at /metrics.
	Metrics http.Handler

	// DiskPath is reported by /api/public/system.
	DiskPath string
}

// Server is the REST API server.
type Server struct {
	opts   Options
	logger zerolog.Logger

	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates a new API server and builds its router.
func NewServer(opts Options) *Server {
	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		opts:   opts,
		logger: util.ComponentLogger("api"),
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured port and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.opts.Config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// SO_REUSEADDR so a restart can rebind immediately
	lc := intnet.ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}

	s.logger.Info().Str("addr", addr).Msg("REST API server starting")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("API server error: %w", err)
	}

	return nil
}

// buildRouter creates the Gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger(s.logger))
	router.Use(SecurityHeaders())

	allowedOrigins := s.opts.Config.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Must be false when AllowOrigins is "*"
		MaxAge:           12 * time.Hour,
	}))

	rateLimiter := NewRateLimiter(s.opts.Config.RateLimitRPS)
	router.Use(rateLimiter.Middleware())

	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/system", s.handleGetSystem)
	}

	api := router.Group("/api")
	{
		api.GET("/targets", s.handleGetTargets)
		api.GET("/targets/:address", s.handleGetTarget)
		api.GET("/targets/:address/history", s.handleGetHistory)
		api.POST("/query", s.handleQuery)
	}

	if s.opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(s.opts.Metrics))
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
