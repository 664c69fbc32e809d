package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/insightmesh/agent"
	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/orchestrator"
	"github.com/hupe1980/insightmesh/status"
)

// MaxUploadBytes caps dataset uploads.
const MaxUploadBytes = 32 << 20

// Options configures a Server.
type Options struct {
	Addr        string
	CORSOrigins []string
	Logger      zerolog.Logger
	Tracer      trace.Tracer
	// Artifacts serves run exports. Nil disables the artifact routes.
	Artifacts core.ArtifactStore
	// QueryTimeout bounds one query run; zero means the request context only.
	QueryTimeout time.Duration
}

// Server is the HTTP adapter over an orchestrator.
type Server struct {
	orch     *orchestrator.Orchestrator
	sessions core.SessionStore
	status   *status.Registry
	agents   *agent.Registry
	opts     Options
	router   chi.Router
}

// New builds the router. status and agents may be nil.
func New(orch *orchestrator.Orchestrator, sessions core.SessionStore, st *status.Registry, agents *agent.Registry, optFns ...func(o *Options)) *Server {
	opts := Options{
		Addr:        ":8080",
		CORSOrigins: []string{"*"},
		Logger:      zerolog.Nop(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/hupe1980/insightmesh/server")
	}
	if st == nil {
		st = status.NewRegistry()
	}

	s := &Server{orch: orch, sessions: sessions, status: st, agents: agents, opts: opts}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.opts.Logger))
	r.Use(tracing(s.opts.Tracer))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.health)

	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Delete("/", s.clearSession)
		r.Post("/dataset", s.uploadDataset)
		r.Post("/query", s.query)
		r.Get("/status", s.sessionStatus)
		r.Get("/history", s.history)
		if s.opts.Artifacts != nil {
			r.Get("/artifacts", s.listArtifacts)
			r.Get("/artifacts/{name}", s.getArtifact)
		}
	})

	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.opts.Logger.Info().Str("addr", s.opts.Addr).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		s.opts.Logger.Info().Msg("server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
