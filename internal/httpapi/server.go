// Package httpapi exposes editing sessions over HTTP: JSON endpoints for
// pointer events, selection, zoom and persistence, plus a server-sent event
// stream that pushes the rendered view after every change.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/a3tai/pdf-field-builder/internal/session"
)

const (
	DefaultHeartbeat       = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	eventBuffer            = 64
)

// Server is the HTTP surface of the field builder
type Server struct {
	manager   *session.Manager
	hub       *Hub
	logger    *zap.Logger
	engine    *gin.Engine
	heartbeat time.Duration
}

// New wires the router. The manager's sessions publish their state to hub,
// and their streams end when a session is closed or expires.
func New(manager *session.Manager, hub *Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hub == nil {
		hub = NewHub(logger)
	}
	manager.SetPublisher(hub.Publish)
	manager.OnClose(hub.CloseSession)

	s := &Server{
		manager:   manager,
		hub:       hub,
		logger:    logger,
		heartbeat: DefaultHeartbeat,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestID(logger))
	engine.Use(AccessLog())
	engine.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Disposition"},
		MaxAge:           12 * time.Hour,
		AllowCredentials: false,
	}))
	engine.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPathsRegexs([]string{`.*/events$`})))

	s.engine = engine
	s.registerRoutes()
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.health)

	api := s.engine.Group("/api/v1")
	api.GET("/field-types", s.fieldTypes)
	api.GET("/sessions", s.listSessions)
	api.POST("/sessions", s.createSession)

	sess := api.Group("/sessions/:id")
	sess.GET("", s.getSession)
	sess.DELETE("", s.closeSession)
	sess.GET("/events", s.events)
	sess.GET("/notifications", s.notifications)

	sess.POST("/load", s.load)
	sess.POST("/save", s.save)
	sess.POST("/detect", s.detect)
	sess.GET("/export.xlsx", s.exportXLSX)

	sess.POST("/tool", s.selectTool)
	sess.POST("/pointer/:phase", s.pointer)
	sess.POST("/lost-capture", s.lostCapture)
	sess.POST("/cancel", s.cancel)
	sess.POST("/select", s.selectField)
	sess.POST("/drop", s.drop)
	sess.POST("/page", s.setPage)
	sess.POST("/zoom", s.zoom)

	sess.GET("/fields", s.listFields)
	sess.GET("/fields/:fieldId", s.getField)
	sess.PATCH("/fields/:fieldId", s.updateField)
	sess.DELETE("/fields/:fieldId", s.deleteField)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	// Requests inherit ctx, so cancelling it also ends open event streams
	// and Shutdown does not wait on them.
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      0, // event streams are long-lived
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
