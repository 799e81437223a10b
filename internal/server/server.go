// File: internal/server/server.go

// Package server exposes the agent loop and the browser session manager over
// a JSON HTTP API. Expected browser failures degrade to ok:false payloads;
// only malformed requests and model transport failures map to error statuses.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/innova-space-edu/mira-agentd/internal/agent"
	"github.com/innova-space-edu/mira-agentd/internal/browser"
	"github.com/innova-space-edu/mira-agentd/internal/config"
)

// ChatRunner runs one conversation turn. Implemented by agent.Loop.
type ChatRunner interface {
	RunTurn(ctx context.Context, sessionID, userText string) (*agent.TurnResult, error)
}

// BrowserController is the per-session browser surface. Implemented by
// browser.Manager.
type BrowserController interface {
	Start(ctx context.Context, id string) (browser.Viewport, string, error)
	Screenshot(ctx context.Context, id string) (string, error)
	Goto(ctx context.Context, id, url string) (string, error)
	Click(ctx context.Context, id string, x, y float64) (string, error)
	Type(ctx context.Context, id, text string) (string, error)
	Key(ctx context.Context, id, name string) (string, error)
	Stop(ctx context.Context, id string)
}

// Server owns the gin router and the underlying http.Server.
type Server struct {
	cfg     config.ServerConfig
	logger  *zap.Logger
	chat    ChatRunner
	browser BrowserController

	httpSrv *http.Server
}

// New builds the server with its routes registered.
func New(cfg config.ServerConfig, chat ChatRunner, bc BrowserController, logger *zap.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  logger.Named("http_server"),
		chat:    chat,
		browser: bc,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	corsCfg := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	router.Use(cors.New(corsCfg))

	router.GET("/", s.handleRoot)
	api := router.Group("/api")
	{
		api.POST("/chat", s.handleChat)

		b := api.Group("/browser")
		b.POST("/start", s.handleBrowserStart)
		b.GET("/screenshot", s.handleBrowserScreenshot)
		b.POST("/goto", s.handleBrowserGoto)
		b.POST("/click", s.handleBrowserClick)
		b.POST("/type", s.handleBrowserType)
		b.POST("/key", s.handleBrowserKey)
		b.POST("/stop", s.handleBrowserStop)
	}

	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening.", zap.String("addr", s.cfg.Addr))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("Shutting down HTTP server.")
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := uuid.NewString()
		c.Set("request_id", requestID)

		c.Next()

		s.logger.Debug("Request handled.",
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func (s *Server) handleRoot(c *gin.Context) {
	c.String(http.StatusOK, "MIRA agent backend OK")
}
