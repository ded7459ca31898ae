// Package server provides the HTTP operations/status API: health check,
// per-symbol worker status, a manual flatten trigger, and a unified
// Server-Sent Events stream over the event bus.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/config"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/events"
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/supervisor"
)

// Version is the running build's reported version string.
const Version = "0.1.0"

// Config holds everything Server needs to wire its routes.
type Config struct {
	Log        zerolog.Logger
	Config     *config.Config
	Supervisor *supervisor.Supervisor
	EventBus   *events.Bus
	Port       int
	DevMode    bool
}

// Server is the ops/status HTTP API.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	cfg    *config.Config
	sup    *supervisor.Supervisor
	bus    *events.Bus
}

// New builds a Server and wires its routes. Call Start to begin serving.
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		cfg:    cfg.Config,
		sup:    cfg.Supervisor,
		bus:    cfg.EventBus,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/version", s.handleVersion)

		streamHandler := NewEventsStreamHandler(s.bus, s.log)
		r.Get("/events/stream", streamHandler.ServeHTTP)

		r.Route("/symbols", func(r chi.Router) {
			r.Get("/", s.handleListSymbols)
			r.Get("/{symbol}", s.handleSymbolStatus)
			r.Post("/{symbol}/flatten", s.handleFlattenSymbol)
		})
	})
}

// loggingMiddleware logs each request's method, path, status, and
// duration.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("server: request handled")
	})
}

// Start begins serving in the background; it returns immediately.
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.server.Addr).Msg("server: listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("server: listen failed")
		}
	}()
}

// Shutdown gracefully stops the server, waiting for in-flight requests up
// to ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
