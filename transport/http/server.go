// Package http is the editor host's control server: a small REST surface
// over the shared action registry plus a server-sent-events stream of the
// bridge's console, message and state-changed events. External tooling and
// scripted operators use it to drive the engine session remotely.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/prism-engine/editor-host/actions"
	"github.com/prism-engine/editor-host/config"
	"github.com/prism-engine/editor-host/enginebridge"
	"github.com/prism-engine/editor-host/logger"
)

type Server struct {
	manager        *actions.Manager
	bridge         *enginebridge.Session
	sessionManager *SessionManager
	config         *config.Config
	echo           *echo.Echo
}

func NewServer(cfg *config.Config, bridge *enginebridge.Session, manager *actions.Manager) *Server {
	return &Server{
		manager:        manager,
		bridge:         bridge,
		sessionManager: NewSessionManager(),
		config:         cfg,
		echo:           echo.New(),
	}
}

func (s *Server) Start() error {
	go s.startCleanupGoroutine()
	s.setupEcho()
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	logger.Info("Control server starting to listen", "address", addr)
	return s.echo.Start(addr)
}

// Shutdown stops accepting connections and drains in-flight requests. Open
// event streams end when their contexts are canceled.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) setupEcho() {
	s.echo.HideBanner = true
	s.echo.Use(middleware.Logger())
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, headerSessionID, "Last-Event-ID"},
	}))
	RegisterRoutes(s.echo, s)
}

func (s *Server) startCleanupGoroutine() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		s.sessionManager.CleanupSessions(10 * time.Minute)
	}
}

func (s *Server) GetActionManager() *actions.Manager {
	return s.manager
}

func (s *Server) GetSessionManager() *SessionManager {
	return s.sessionManager
}

func (s *Server) GetConfig() *config.Config {
	return s.config
}
