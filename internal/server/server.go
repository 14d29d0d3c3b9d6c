package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/akashi/internal/engine"
	"github.com/ashita-ai/akashi/internal/storage"
)

// Server is Forge's HTTP server: the routes of spec §6 over a single
// in-process engine.Engine, with no auth/rate-limit layer per spec's
// Non-goals.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	broker     *Broker
	logger     *slog.Logger
}

// Handler returns the root HTTP handler, for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Handlers returns the underlying Handlers.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Broker returns the SSE broker so main() can start its relay loop.
func (s *Server) Broker() *Broker {
	return s.broker
}

// ServerConfig holds all dependencies and configuration for creating a Server.
type ServerConfig struct {
	Engine      *engine.Engine
	Idempotency *storage.IdempotencyStore
	Logger      *slog.Logger

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
	CORSAllowedOrigins  []string // ["*"] permits all.

	// MCPServer, if non-nil, is mounted at /mcp over the StreamableHTTP
	// transport alongside the REST routes.
	MCPServer *mcpserver.MCPServer
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	broker := NewBroker(cfg.Engine.Events(), cfg.Logger)

	h := NewHandlers(HandlersDeps{
		Engine:              cfg.Engine,
		Idempotency:         cfg.Idempotency,
		Broker:              broker,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.HandleHealth)

	mux.HandleFunc("POST /v1/states", h.HandleCreateState)
	mux.HandleFunc("GET /v1/states", h.HandleListStates)
	mux.HandleFunc("GET /v1/states/{state}", h.HandleGetState)
	mux.HandleFunc("GET /v1/states/{state}/conflicts", h.HandleListConflicts)
	mux.HandleFunc("POST /v1/states/{state}/promote", h.HandlePromote)
	mux.HandleFunc("GET /v1/stream/states/{state}", h.HandleStreamState)

	mux.HandleFunc("POST /v1/change-sets", h.HandleSubmitChangeSet)
	mux.HandleFunc("GET /v1/change-sets", h.HandleListChangeSets)
	mux.HandleFunc("GET /v1/change-sets/{id}", h.HandleGetChangeSet)

	mux.HandleFunc("POST /v1/ops", h.HandleSubmitOps)
	mux.HandleFunc("GET /v1/ops/{id}", h.HandleGetOp)

	mux.HandleFunc("GET /v1/conflicts/{id}", h.HandleGetConflict)
	mux.HandleFunc("POST /v1/conflicts/{id}/resolve", h.HandleResolveConflict)

	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	// Middleware chain (outermost executes first): request ID -> security
	// headers -> CORS -> tracing -> logging -> recovery -> handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = corsMiddleware(cfg.CORSAllowedOrigins, handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  2 * cfg.ReadTimeout,
		},
		handler:  handler,
		handlers: h,
		broker:   broker,
		logger:   cfg.Logger,
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
