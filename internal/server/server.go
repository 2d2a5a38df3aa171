// Package server provides devscript-server, a local implementation of the
// DevScript service that the client variant talks to.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Server is the HTTP API server.
type Server struct {
	router   chi.Router
	server   *http.Server
	logger   zerolog.Logger
	handlers *Handlers
}

// Config holds server configuration.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// ModelTimeout bounds one model call inside a request.
	ModelTimeout time.Duration
}

// Dependencies holds the dependencies needed by the API handlers.
type Dependencies struct {
	Accounts     *Accounts
	GeneratorFor GeneratorFunc
	DefaultModel string
	Version      string
	StartTime    time.Time
}

// New creates a new API server.
func New(cfg Config, deps Dependencies, base zerolog.Logger) *Server {
	logger := base.With().Str("component", "api").Logger()

	h := &Handlers{
		accounts:     deps.Accounts,
		generatorFor: deps.GeneratorFor,
		defaultModel: deps.DefaultModel,
		modelTimeout: cfg.ModelTimeout,
		version:      deps.Version,
		startTime:    deps.StartTime,
		baseLogger:   base,
		logger:       base.With().Str("component", "handlers").Logger(),
	}

	router := chi.NewRouter()

	// Middleware stack
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)

	// Routes
	router.Group(func(r chi.Router) {
		r.Use(h.RequireAPIKey)

		r.Get("/user/usage", h.Usage)
		r.Post("/convert", h.Convert)
		r.Post("/explain", h.Explain)
	})

	router.Get("/health", h.HealthCheck)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &Server{
		router:   router,
		server:   server,
		logger:   logger,
		handlers: h,
	}
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// requestLogger returns a middleware that logs requests.
func requestLogger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				status := ww.Status()

				event := logger.Info()
				if status >= 500 {
					event = logger.Error()
				} else if status >= 400 {
					event = logger.Warn()
				}

				event.
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", status).
					Dur("duration", time.Since(start)).
					Str("remote", r.RemoteAddr).
					Str("request_id", middleware.GetReqID(r.Context())).
					Msg("Request completed")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
