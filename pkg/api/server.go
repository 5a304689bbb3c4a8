// Package api provides the HTTP and WebSocket boundary of collabd. The
// handlers are pure translation: parse and validate the wire format,
// call the store, map the result or error back to JSON. No domain logic
// lives here.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/frostwall/collabd/pkg/events"
	"github.com/frostwall/collabd/pkg/observer"
	"github.com/frostwall/collabd/pkg/store"
)

// Server is the HTTP API server.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	store      *store.Store
	bus        *events.Bus
	ingestor   *observer.Ingestor // nil until set (stats endpoint)
}

// NewServer creates the API server and registers all routes.
func NewServer(st *store.Store, bus *events.Bus) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{
		router: router,
		store:  st,
		bus:    bus,
	}
	s.setupRoutes()
	return s
}

// SetIngestor wires the observer ingestor for the stats endpoint.
// Optional: a server without an ingestor reports zero remembered frames.
func (s *Server) SetIngestor(ing *observer.Ingestor) {
	s.ingestor = ing
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes registers all API routes.
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)

	api := s.router.Group("/api")
	api.GET("/state", s.stateHandler)
	api.GET("/stats", s.statsHandler)

	api.GET("/chat", s.listChatHandler)
	api.POST("/chat", s.createChatHandler)

	api.GET("/tasks", s.listTasksHandler)
	api.POST("/tasks", s.createTaskHandler)
	api.PATCH("/tasks/:id/status", s.setTaskStatusHandler)

	api.GET("/timeline", s.listTimelineHandler)
	api.POST("/timeline", s.createTimelineHandler)

	api.GET("/presence", s.listPresenceHandler)
	api.POST("/presence", s.setPresenceHandler)

	api.GET("/observer/frames", s.listFramesHandler)

	// WebSocket endpoint for real-time event streaming.
	s.router.GET("/ws", s.wsHandler)
}

// requestLogger logs each request at debug with method, path, status
// and latency. Kept at debug so steady-state polling stays quiet.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// Start starts the HTTP server on the given address (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener.
// Used by test infrastructure to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.router}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
