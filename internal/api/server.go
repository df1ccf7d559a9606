// Package api provides the HTTP/HTTPS server and routing for the QuietPlanet API.
//
//nolint:revive // "api" is a clear and appropriate package name
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/fzdarsky/quietplanet/internal/api/handlers"
	"github.com/fzdarsky/quietplanet/internal/api/middleware"
	"github.com/fzdarsky/quietplanet/internal/config"
	"github.com/fzdarsky/quietplanet/internal/credstore"
	"github.com/fzdarsky/quietplanet/internal/logging"
	tlspkg "github.com/fzdarsky/quietplanet/internal/tls"
)

// Server represents the HTTP/HTTPS API server.
type Server struct {
	httpServer      *http.Server
	logger          *logging.Logger
	tlsEnabled      bool
	shutdownTimeout time.Duration
}

// New creates a new API server instance serving handler.
func New(cfg *config.Config, logger *logging.Logger, handler http.Handler) (*Server, error) {
	timeout, err := cfg.GetShutdownTimeout()
	if err != nil {
		return nil, err
	}

	server := &Server{
		httpServer: &http.Server{
			Addr:              cfg.ListenAddress(),
			Handler:           handler,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger:          logger,
		tlsEnabled:      cfg.TLSEnabled(),
		shutdownTimeout: timeout,
	}

	if !server.tlsEnabled {
		return server, nil
	}

	if cfg.Server.GenerateCert {
		generated, err := tlspkg.EnsureDevCertificate(cfg.Server.TLSCert, cfg.Server.TLSKey)
		if err != nil {
			return nil, fmt.Errorf("failed to generate development certificate: %w", err)
		}
		if generated {
			logger.Warn("generated self-signed development certificate", map[string]any{
				"cert": cfg.Server.TLSCert,
			})
		}
	} else if err := tlspkg.ValidateCertificate(cfg.Server.TLSCert); err != nil {
		return nil, fmt.Errorf("invalid TLS certificate %s: %w", cfg.Server.TLSCert, err)
	}

	tlsConfig, err := tlspkg.NewServerConfig(cfg.Server.TLSCert, cfg.Server.TLSKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create TLS config: %w", err)
	}
	server.httpServer.TLSConfig = tlsConfig

	return server, nil
}

// RouterOption customizes NewRouter.
type RouterOption func(*routerOptions)

type routerOptions struct {
	isShutdown func() bool
}

// WithShutdownCheck rejects new requests with SHUTTING_DOWN once isShutdown returns true.
func WithShutdownCheck(isShutdown func() bool) RouterOption {
	return func(o *routerOptions) {
		o.isShutdown = isShutdown
	}
}

// NewRouter registers the API routes and wraps them with recovery and request logging.
func NewRouter(h *handlers.AuthHandler, am *middleware.AuthMiddleware, logger *logging.Logger, opts ...RouterOption) http.Handler {
	var o routerOptions
	for _, opt := range opts {
		opt(&o)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/register", h.HandleRegister)
	mux.HandleFunc("POST /api/login/start", h.HandleLoginStart)
	mux.HandleFunc("POST /api/login/verify", h.HandleLoginVerify)
	mux.Handle("POST /api/login/logout", am.Require(http.HandlerFunc(h.HandleLogout)))
	mux.Handle("GET /api/me", am.Require(http.HandlerFunc(h.HandleWhoAmI)))
	mux.Handle("GET /api/donator", am.RequireRole(credstore.RoleDonator, credstore.RoleAdmin)(http.HandlerFunc(h.HandleDonator)))
	mux.Handle("PUT /api/admin/role", am.RequireRole(credstore.RoleAdmin)(http.HandlerFunc(h.HandleAssignRole)))

	middlewares := []func(http.Handler) http.Handler{middleware.ErrorHandler(logger), middleware.Logging(logger)}
	if o.isShutdown != nil {
		middlewares = append(middlewares, middleware.RejectDuringShutdown(o.isShutdown))
	}
	return middleware.Chain(mux, middlewares...)
}

// Start listens on the configured address and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting API server", map[string]any{
		"address": ln.Addr().String(),
		"tls":     s.tlsEnabled,
	})

	errChan := make(chan error, 1)
	go func() {
		var err error
		if s.tlsEnabled {
			// Certificates are already loaded into TLSConfig.
			err = s.httpServer.ServeTLS(ln, "", "")
		} else {
			err = s.httpServer.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err, ok := <-errChan:
		if !ok {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutting down API server")
		return s.Shutdown(context.WithoutCancel(ctx))
	}
}

// Shutdown gracefully shuts down the server within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}
