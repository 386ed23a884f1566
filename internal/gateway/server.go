package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
)

// ServerOpts bundles the middleware and route registrars the server
// mounts around the completions handler.
type ServerOpts struct {
	AuthMiddleware      Middleware
	MetricsMiddleware   Middleware
	MetricsHandler      http.Handler
	AdminRouteRegistrar func(*http.ServeMux)
}

// Server is the admission front-end's HTTP server.
type Server struct {
	cfg    Config
	http   *http.Server
	logger *slog.Logger
}

// NewServer builds the routed, middleware-wrapped HTTP server.
func NewServer(cfg Config, handler *Handler, logger *slog.Logger, opts *ServerOpts) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts == nil {
		opts = &ServerOpts{}
	}

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	if opts.AdminRouteRegistrar != nil {
		opts.AdminRouteRegistrar(mux)
	}
	if opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", opts.MetricsHandler)
	}

	var mw []Middleware
	if opts.MetricsMiddleware != nil {
		mw = append(mw, opts.MetricsMiddleware)
	}
	if opts.AuthMiddleware != nil {
		mw = append(mw, opts.AuthMiddleware)
	}
	root := chain(mux, mw...)

	return &Server{
		cfg: cfg,
		http: &http.Server{
			Addr:           cfg.Addr,
			Handler:        root,
			ReadTimeout:    cfg.ReadTimeout,
			WriteTimeout:   cfg.WriteTimeout,
			IdleTimeout:    cfg.IdleTimeout,
			MaxHeaderBytes: cfg.MaxHeaderBytes,
		},
		logger: logger.With("component", "gateway-server"),
	}
}

// Start runs the server until it is shut down. It returns nil after a
// clean shutdown (http.ErrServerClosed) and any other listen error as is.
func (s *Server) Start() error {
	s.logger.Info("gateway listening", "addr", s.cfg.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
