// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/gtrade-dashboard/internal/adapter"
	"github.com/gtrade-dashboard/internal/circuitbreaker"
	"github.com/gtrade-dashboard/internal/logging"
	"github.com/gtrade-dashboard/internal/types"
	"github.com/gtrade-dashboard/internal/worker"
)

// DashboardController is the part of the refresh controller the API uses
type DashboardController interface {
	CurrentSnapshot() *types.Snapshot
	IsLoading() bool
	TriggerRefresh() bool
	Subscribe() (<-chan *types.Snapshot, func())
	GetStatus() *worker.Status
}

// ChainHealth reports the chain endpoint state; nil when running on mock data
type ChainHealth interface {
	Health() *adapter.ProviderHealth
	BreakerStats() *circuitbreaker.Stats
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	handler    http.Handler
	upgrader   websocket.Upgrader
	httpServer *http.Server
	controller DashboardController
	chain      ChainHealth
	config     *ServerConfig
	logger     *logging.Logger
	startedAt  time.Time
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	RequestsPerSecond int
	Burst             int
	AllowedOrigins    []string
	TradeCap          int // upper bound for /api/trades?limit=
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, controller DashboardController, chain ChainHealth) *Server {
	if config.TradeCap <= 0 {
		config.TradeCap = 50
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		router:     mux.NewRouter(),
		controller: controller,
		chain:      chain,
		config:     config,
		logger:     logging.GetGlobalLogger().WithComponent("api"),
		startedAt:  time.Now(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(config.AllowedOrigins),
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerSecond, s.config.Burst)

	// Order matters: the request id must exist before anything logs
	s.router.Use(RequestIDMiddleware)
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RateLimitMiddleware(rateLimiter))

	s.setupRoutes()

	cors := handlers.CORS(
		handlers.AllowedOrigins(s.config.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", RequestIDHeader}),
		handlers.ExposedHeaders([]string{RequestIDHeader}),
		handlers.MaxAge(3600),
	)
	compressed := handlers.CompressHandler(s.router)
	// WebSocket upgrades need the raw connection, so they bypass compression
	routed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			s.router.ServeHTTP(w, r)
			return
		}
		compressed.ServeHTTP(w, r)
	})
	s.handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.logger}),
		handlers.PrintRecoveryStack(false),
	)(cors(routed))

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/dashboard", s.handleDashboard).Methods("GET")
	api.HandleFunc("/strategies", s.handleStrategies).Methods("GET")
	api.HandleFunc("/strategies/{id}", s.handleStrategy).Methods("GET")
	api.HandleFunc("/trades", s.handleTrades).Methods("GET")
	api.HandleFunc("/funding-rates", s.handleFundingRates).Methods("GET")
	api.HandleFunc("/pnl-history", s.handlePnLHistory).Methods("GET")
	api.HandleFunc("/refresh", s.handleRefresh).Methods("POST")
	api.HandleFunc("/stream", s.handleStream).Methods("GET")
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// recoveryLogger adapts the structured logger to gorilla's RecoveryHandlerLogger
type recoveryLogger struct {
	logger *logging.Logger
}

func (l recoveryLogger) Println(args ...interface{}) {
	l.logger.WithField("panic", fmt.Sprint(args...)).Error("Recovered from panic in handler")
}
