package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/snarg/freescanner-live/internal/config"
	"github.com/snarg/freescanner-live/internal/metrics"
	"github.com/snarg/freescanner-live/internal/storage"
)

// ServerOptions wires the API to the running client. Calls, Search, MQTT
// and DB are optional.
type ServerOptions struct {
	Display   DisplaySource
	Selection SelectionSource
	Exec      Executor
	Server    ConnChecker
	MQTT      ConnChecker
	DB        Pinger
	Calls     CallLogSource
	Search    SearchSource
	Store     storage.CallArchive
	Version   string
	StartTime time.Time
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(cfg *config.Config, opts ServerOptions, log zerolog.Logger) *Server {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(metrics.InstrumentHandler)
	r.Use(CORSWithOrigins(cfg.CORSOrigins))

	// Health and metrics: no auth
	health := NewHealthHandler(opts.Server, opts.MQTT, opts.DB, opts.Version, opts.StartTime)
	r.Get("/api/v1/health", health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	// Authenticated routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuth(cfg.AuthToken))
		NewLiveHandler(opts.Display, opts.Selection, opts.Exec).Routes(r)
		if opts.Search != nil {
			NewSearchHandler(opts.Search, opts.Display, opts.Exec).Routes(r)
		}
		if opts.Calls != nil {
			NewCallsHandler(opts.Calls, opts.Store).Routes(r)
		}
	})

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

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
