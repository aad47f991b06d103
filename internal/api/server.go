package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mixid/mixid-engine/internal/config"
	"github.com/mixid/mixid-engine/internal/identify"
	"github.com/mixid/mixid-engine/internal/metrics"
	"github.com/mixid/mixid-engine/internal/progress"
)

// JobSource reports job activity for the health and admin endpoints.
type JobSource interface {
	Stats() identify.Stats
	ActiveJobCount() int
}

// Options carries the server's dependencies.
type Options struct {
	Config   *config.Config
	Runner   IdentifyRunner
	Bus      *progress.Bus
	Jobs     JobSource
	Sweeper  WorkspaceSweeper
	Splitter ToolChecker
	Fetcher  ToolChecker
	Watcher  WatcherStatus // nil when no watch dir is configured
	Version  string
	Log      zerolog.Logger
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(opts Options) *Server {
	cfg := opts.Config
	r := chi.NewRouter()

	// Global middleware. Logger before Recoverer so panics are logged
	// with request context.
	r.Use(RequestID)
	r.Use(Logger(opts.Log))
	r.Use(Recoverer)
	r.Use(metrics.InstrumentHandler)
	r.Use(CORSWithOrigins(cfg.AllowedOrigins))

	// Unauthenticated surface
	r.Get("/", HandleRoot(opts.Version))
	r.Get("/api/v1/openapi.yaml", HandleOpenAPI())
	r.Handle("/metrics", promhttp.Handler())

	health := NewHealthHandler(HealthOptions{
		Splitter:        opts.Splitter,
		Fetcher:         opts.Fetcher,
		Recognizer:      cfg.Recognizer,
		RecognizerReady: cfg.RecognizerConfigured(),
		Watcher:         opts.Watcher,
		Jobs:            opts.Jobs,
		Version:         opts.Version,
	})
	r.Get("/api/v1/health", health.ServeHTTP)

	// Job surface: rate limited, token checked when one is configured
	r.Group(func(r chi.Router) {
		r.Use(RateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst))
		r.Use(BearerAuth(cfg.AuthToken))
		r.Post("/api/v1/identify", HandleIdentify(opts.Runner, cfg.RecognizerConfigured(), opts.Log))
		r.Get("/api/v1/events", HandleEvents(opts.Bus))
	})

	// Admin surface: never runs open
	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(cfg.AuthToken))
		r.Use(BearerAuth(cfg.AuthToken))
		admin := NewAdminHandler(opts.Sweeper, opts.Jobs)
		r.Route("/api/v1", admin.Routes)
	})

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: opts.Log,
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
