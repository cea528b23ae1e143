// Package httpserver wires the store's API and admin listeners.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"git.home.luguber.info/inful/artifactstore/internal/apiclient"
	"git.home.luguber.info/inful/artifactstore/internal/auditstore"
	"git.home.luguber.info/inful/artifactstore/internal/auth"
	"git.home.luguber.info/inful/artifactstore/internal/config"
	serrors "git.home.luguber.info/inful/artifactstore/internal/errors"
	"git.home.luguber.info/inful/artifactstore/internal/gateway"
	"git.home.luguber.info/inful/artifactstore/internal/metrics"
	"git.home.luguber.info/inful/artifactstore/internal/server/handlers"
	smw "git.home.luguber.info/inful/artifactstore/internal/server/middleware"
)

// Options carries the server's collaborators. MetricsHandler and Audit may
// be nil.
type Options struct {
	Gateway        *gateway.Gateway
	Verifier       *auth.Verifier
	API            *apiclient.Client
	Audit          *auditstore.Store
	Recorder       metrics.Recorder
	MetricsHandler http.Handler
	Version        string
	StartTime      time.Time
}

// Server manages the API listener (builds, caches, commands) and the admin
// listener (status, stats, audit, metrics).
type Server struct {
	apiServer    *http.Server
	adminServer  *http.Server
	cfg          *config.Config
	opts         Options
	errorAdapter *serrors.HTTPErrorAdapter

	buildHandlers   *handlers.BuildHandlers
	cacheHandlers   *handlers.CacheHandlers
	commandHandlers *handlers.CommandHandlers
	adminHandlers   *handlers.AdminHandlers

	mchain func(http.Handler) http.Handler
	authed func(http.Handler) http.Handler
}

// New constructs the HTTP server wiring.
func New(cfg *config.Config, opts Options) *Server {
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	s := &Server{
		cfg:          cfg,
		opts:         opts,
		errorAdapter: serrors.NewHTTPErrorAdapter(slog.Default()),
	}

	s.buildHandlers = handlers.NewBuildHandlers(opts.Gateway)
	s.cacheHandlers = handlers.NewCacheHandlers(opts.Gateway, opts.API)
	s.commandHandlers = handlers.NewCommandHandlers(opts.Gateway, opts.API)
	s.adminHandlers = handlers.NewAdminHandlers(opts.Gateway, opts.Audit, opts.Version, opts.StartTime)

	s.mchain = smw.Chain(slog.Default(), s.errorAdapter, opts.Recorder)
	s.authed = smw.RequireAuth(opts.Verifier, s.errorAdapter)

	return s
}

// Start binds both listeners and begins serving. Both ports are pre-bound so
// startup fails fast with one aggregate error instead of partial
// initialization.
func (s *Server) Start(ctx context.Context) error {
	type preBind struct {
		name string
		port int
		ln   net.Listener
	}
	binds := []preBind{
		{name: "api", port: s.cfg.Server.Port},
		{name: "admin", port: s.cfg.Server.AdminPort},
	}
	var bindErrs []error
	lc := net.ListenConfig{}
	for i := range binds {
		ln, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", binds[i].port))
		if err != nil {
			bindErrs = append(bindErrs, fmt.Errorf("%s port %d: %w", binds[i].name, binds[i].port, err))
			continue
		}
		binds[i].ln = ln
	}
	if len(bindErrs) > 0 {
		for _, b := range binds {
			if b.ln != nil {
				_ = b.ln.Close()
			}
		}
		return fmt.Errorf("http startup failed: %w", errors.Join(bindErrs...))
	}

	s.startAPIServer(binds[0].ln)
	s.startAdminServer(binds[1].ln)

	slog.Info("HTTP servers started",
		slog.Int("api_port", s.cfg.Server.Port),
		slog.Int("admin_port", s.cfg.Server.AdminPort))
	return nil
}

// apiHandler assembles the routed, authenticated API handler.
func (s *Server) apiHandler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /v1/builds/{id}/{artifact...}", http.HandlerFunc(s.buildHandlers.HandleGet))
	mux.Handle("PUT /v1/builds/{id}/{artifact...}", http.HandlerFunc(s.buildHandlers.HandlePut))
	mux.Handle("DELETE /v1/builds/{id}/{artifact...}", http.HandlerFunc(s.buildHandlers.HandleDelete))

	mux.Handle("GET /v1/caches/{scope}/{id}/{name...}", http.HandlerFunc(s.cacheHandlers.HandleGet))
	mux.Handle("PUT /v1/caches/{scope}/{id}/{name...}", http.HandlerFunc(s.cacheHandlers.HandlePut))
	mux.Handle("DELETE /v1/caches/{scope}/{id}/{name...}", http.HandlerFunc(s.cacheHandlers.HandleDelete))
	mux.Handle("DELETE /v1/caches/{scope}/{id}", http.HandlerFunc(s.cacheHandlers.HandleInvalidate))

	mux.Handle("GET /v1/commands/{namespace}/{name}/{version}", http.HandlerFunc(s.commandHandlers.HandleGet))
	mux.Handle("PUT /v1/commands/{namespace}/{name}/{version}", http.HandlerFunc(s.commandHandlers.HandlePut))
	mux.Handle("DELETE /v1/commands/{namespace}/{name}/{version}", http.HandlerFunc(s.commandHandlers.HandleDelete))

	return s.mchain(s.authed(mux))
}

// adminHandler assembles the unauthenticated admin handler.
func (s *Server) adminHandler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /v1/status", http.HandlerFunc(s.adminHandlers.HandleStatus))
	mux.Handle("GET /v1/stats", http.HandlerFunc(s.adminHandlers.HandleStats))
	mux.Handle("GET /v1/audit", http.HandlerFunc(s.adminHandlers.HandleAudit))
	if s.opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", s.opts.MetricsHandler)
	}

	return s.mchain(mux)
}

func (s *Server) startAPIServer(ln net.Listener) {
	s.apiServer = &http.Server{
		Handler:     s.apiHandler(),
		ReadTimeout: 10 * time.Minute,
		// Large artifact transfers; the write deadline must cover the
		// whole download.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	s.serve("api", s.apiServer, ln)
}

func (s *Server) startAdminServer(ln net.Listener) {
	s.adminServer = &http.Server{
		Handler:      s.adminHandler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.serve("admin", s.adminServer, ln)
}

// serve launches an http.Server on its pre-bound listener.
func (s *Server) serve(kind string, srv *http.Server, ln net.Listener) {
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s server error", kind), "error", err)
		}
	}()
}

// Stop gracefully shuts down both listeners.
func (s *Server) Stop(ctx context.Context) error {
	var errs []error
	if s.adminServer != nil {
		if err := s.adminServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin server shutdown: %w", err))
		}
	}
	if s.apiServer != nil {
		if err := s.apiServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("api server shutdown: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	slog.Info("HTTP servers stopped")
	return nil
}
