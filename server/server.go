// Package server is a reference remote task service speaking the batched
// action protocol.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/existflow/ironnotes/internal/config"
	"github.com/existflow/ironnotes/internal/logger"
	"github.com/existflow/ironnotes/internal/protocol"
)

// Server is the remote task service
type Server struct {
	store      Store
	engine     *Engine
	echo       *echo.Echo
	limiter    *rateLimiter
	sessionTTL time.Duration
}

// New creates a server over store
func New(store Store, cfg *config.ServerConfig) *Server {
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	s := &Server{
		store:      store,
		engine:     NewEngine(store),
		limiter:    newRateLimiter(cfg.RateLimitPerMin),
		sessionTTL: ttl,
	}
	s.setupEcho()
	return s
}

// Open creates a server for cfg: Postgres when a database URL is set,
// in-memory otherwise.
func Open(cfg *config.ServerConfig) (*Server, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("No DATABASE_URL set, using in-memory store")
		return New(NewMemoryStore(), cfg), nil
	}
	store, err := OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return New(store, cfg), nil
}

func (s *Server) setupEcho() {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(requestLogger)
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORS())

	// Health check
	e.GET("/health", s.handleHealth)

	// API v1
	api := e.Group("/api/v1")
	api.Use(s.rateLimitMiddleware)

	// Auth endpoints (public)
	api.POST("/register", s.handleRegister)
	api.POST("/login", s.handleLogin)

	// Protected endpoints
	protected := api.Group("")
	protected.Use(s.authMiddleware)
	protected.GET("/me", s.handleMe)
	protected.POST("/logout", s.handleLogout)
	protected.POST("/actions", s.handleActions)

	s.echo = e
}

// Engine returns the action engine, for in-process clients
func (s *Server) Engine() *Engine {
	return s.engine
}

// Store returns the backing store
func (s *Server) Store() Store {
	return s.store
}

// Close closes the store
func (s *Server) Close() error {
	return s.store.Close()
}

// Router returns the HTTP handler
func (s *Server) Router() http.Handler {
	return s.echo
}

// Start starts the server
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleActions applies one batch of actions for the session's user
func (s *Server) handleActions(c echo.Context) error {
	var req protocol.Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	user, err := s.sessionUser(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "user not found"})
	}

	resp, err := s.engine.Apply(c.Request().Context(), user, &req)
	if err != nil {
		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			logger.Warn("Batch refused", logger.F("user_id", user.ID), logger.F("error", reqErr.Error()))
			return c.JSON(http.StatusBadRequest, map[string]string{"error": reqErr.Error()})
		}
		logger.Error("Batch failed", logger.F("user_id", user.ID), logger.F("error", err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}

	logger.Debug("Batch applied",
		logger.F("user_id", user.ID),
		logger.F("actions", len(req.ActionList)),
		logger.F("latest_sync_point", resp.LatestSyncPoint))
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) sessionUser(c echo.Context) (protocol.User, error) {
	userID, _ := c.Get("user_id").(string)
	u, err := s.store.UserByID(c.Request().Context(), userID)
	if err != nil {
		return protocol.User{}, err
	}
	return u.Principal(), nil
}
