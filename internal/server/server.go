// Package server provides the HTTP server implementation.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/localbackend/internal/config"
	"github.com/vyrodovalexey/localbackend/internal/handler"
	"github.com/vyrodovalexey/localbackend/internal/middleware"
	"github.com/vyrodovalexey/localbackend/internal/store"
)

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	handler    http.Handler
	config     *config.Config
	logger     *zap.Logger
	wsHandler  *handler.WebSocketHandler
}

// New creates a new Server instance serving itemStore and reporting status
// from statusSource.
func New(
	cfg *config.Config,
	logger *zap.Logger,
	itemStore store.Store,
	statusSource handler.StatusSource,
) *Server {
	router := mux.NewRouter()

	s := &Server{
		router: router,
		config: cfg,
		logger: logger,
	}

	s.setupRoutes(itemStore, statusSource)
	s.setupMiddleware()
	s.setupHTTPServer()

	return s
}

// setupMiddleware configures the middleware chain. The chain wraps the whole
// router so requests matching no route still get CORS and request IDs.
func (s *Server) setupMiddleware() {
	// Metrics needs the matched route, which only exists inside the router.
	if s.config.MetricsEnabled {
		s.router.Use(mux.MiddlewareFunc(middleware.Metrics()))
	}

	// First listed = outermost.
	chain := middleware.Chain(
		middleware.Recovery(s.logger),
		middleware.RequestID(),
		middleware.Logging(s.logger),
		middleware.CORS(),
		middleware.RateLimit(s.config.RateLimit, s.config.RateBurst, s.logger),
	)
	s.handler = chain(s.router)
}

// setupRoutes configures the API routes.
func (s *Server) setupRoutes(itemStore store.Store, statusSource handler.StatusSource) {
	restHandler := handler.NewRESTHandler(itemStore, s.logger, s.config.MaxBodyBytes)
	restHandler.RegisterRoutes(s.router)

	statusHandler := handler.NewStatusHandler(statusSource, s.logger)
	statusHandler.RegisterRoutes(s.router)

	s.wsHandler = handler.NewWebSocketHandler(statusSource, s.logger)
	s.wsHandler.RegisterRoutes(s.router)

	if s.config.MetricsEnabled {
		s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	// Unknown paths and wrong methods share one JSON 404.
	notFound := handler.NotFound(s.logger)
	if s.config.MetricsEnabled {
		notFound = middleware.Metrics()(notFound)
	}
	s.router.NotFoundHandler = notFound
	s.router.MethodNotAllowedHandler = notFound
}

// setupHTTPServer configures the HTTP server.
func (s *Server) setupHTTPServer() {
	s.httpServer = &http.Server{
		Addr:              s.config.Address(),
		Handler:           s.handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting server",
		zap.String("address", ln.Addr().String()),
		zap.Bool("metrics_enabled", s.config.MetricsEnabled),
	)

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server serve: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	// Close all WebSocket connections first
	if s.wsHandler != nil {
		s.wsHandler.CloseAllConnections()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// Handler returns the fully wrapped request handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Router returns the server's router for testing purposes.
func (s *Server) Router() *mux.Router {
	return s.router
}
