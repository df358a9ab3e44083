package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/telnet2/wamux/internal/credential"
	"github.com/telnet2/wamux/internal/event"
	"github.com/telnet2/wamux/internal/sessionstore"
	"github.com/telnet2/wamux/internal/supervisor"
)

// Config holds server configuration.
type Config struct {
	Hostname     string
	Port         int
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Hostname:     "127.0.0.1",
		Port:         8080,
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // No write timeout for SSE
	}
}

// Options carries the services the handlers operate on. Backup and Bus are
// optional.
type Options struct {
	Store      *sessionstore.Store
	Supervisor *supervisor.Supervisor
	Backup     *credential.Backup
	Bus        *event.Bus
	Version    string
}

// Server is the HTTP server.
type Server struct {
	config  *Config
	router  *chi.Mux
	httpSrv *http.Server

	store   *sessionstore.Store
	sup     *supervisor.Supervisor
	backup  *credential.Backup
	bus     *event.Bus
	version string
	started time.Time
}

// New creates a new Server instance.
func New(cfg *Config, opts Options) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Server{
		config:  cfg,
		router:  chi.NewRouter(),
		store:   opts.Store,
		sup:     opts.Supervisor,
		backup:  opts.Backup,
		bus:     opts.Bus,
		version: opts.Version,
		started: time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures middleware for the server.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Link", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Hostname, fmt.Sprint(s.config.Port))
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         s.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
