package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/flailbot/flailbot/internal/config"
	"github.com/flailbot/flailbot/internal/db"
	"github.com/flailbot/flailbot/internal/events"
)

// History is the recorded event history served under /api/history.
type History interface {
	RecentFeed(limit int) ([]db.FeedEntry, error)
	Kings(limit int) ([]db.KingEntry, error)
	Stats() (db.FeedStats, error)
	LatestLeaderboard() (events.Leaderboard, error)
}

// Server is the HTTP API server.
type Server struct {
	cfg     *config.Config
	state   *WorldState
	version string
	logger  zerolog.Logger

	// Optional dependencies
	history  History
	gatherer prometheus.Gatherer

	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, state *WorldState, version string) *Server {
	if cfg.Logging.Level == "debug" || cfg.Logging.Level == "trace" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	return &Server{
		cfg:      cfg,
		state:    state,
		version:  version,
		logger:   log.With().Str("component", "api").Logger(),
		gatherer: prometheus.DefaultGatherer,
	}
}

// SetDependencies injects the recorder and the metrics gatherer. A nil
// history disables the /api/history routes.
func (s *Server) SetDependencies(history History, gatherer prometheus.Gatherer) {
	s.history = history
	if gatherer != nil {
		s.gatherer = gatherer
	}
}

// Handler builds the router. It is exposed for tests.
func (s *Server) Handler() http.Handler {
	if s.router == nil {
		s.router = s.buildRouter()
	}
	return s.router
}

// Start listens on the configured port and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.API.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	var lc net.ListenConfig
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

	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}

	return nil
}

// buildRouter creates the Gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	allowedOrigins := s.cfg.API.AllowedOrigins
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

	rateLimiter := NewRateLimiter(s.cfg.API.RateLimitRPS)
	router.Use(rateLimiter.Middleware())

	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/version", s.handleGetVersion)
	}

	api := router.Group("/api")
	{
		api.GET("/status", s.handleGetStatus)
		api.GET("/host", s.handleGetHost)
	}

	worldGroup := router.Group("/api/world")
	{
		worldGroup.GET("/entities", s.handleGetEntities)
		worldGroup.GET("/entities/:id", s.handleGetEntity)
		worldGroup.GET("/king", s.handleGetKing)
		worldGroup.GET("/leaderboard", s.handleGetLeaderboard)
		worldGroup.GET("/map", s.handleGetMap)
	}

	if s.history != nil {
		history := router.Group("/api/history")
		{
			history.GET("/feed", s.handleGetFeed)
			history.GET("/kings", s.handleGetKings)
			history.GET("/stats", s.handleGetFeedStats)
			history.GET("/leaderboard", s.handleGetRecordedLeaderboard)
		}
	}

	configure := router.Group("/api/config")
	{
		configure.GET("", s.handleGetConfig)
		configure.POST("/client", s.handleSetClient)
	}

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "flailbot API is running"})
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
