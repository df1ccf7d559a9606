// QuietPlanet is the account and SRP-6a login service.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/fzdarsky/quietplanet/internal/api"
	"github.com/fzdarsky/quietplanet/internal/api/handlers"
	"github.com/fzdarsky/quietplanet/internal/api/middleware"
	"github.com/fzdarsky/quietplanet/internal/auth"
	"github.com/fzdarsky/quietplanet/internal/config"
	"github.com/fzdarsky/quietplanet/internal/lifecycle"
	"github.com/fzdarsky/quietplanet/internal/logging"
	"github.com/fzdarsky/quietplanet/pkg/srp"
)

var (
	// version is set by build flags
	version = "dev"
	// commit is set by build flags
	commit = "none"
)

const defaultConfigPath = "/etc/quietplanet/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("quietplanet version %s (%s)\n", version, commit)
		return
	}

	// Replaced once the configuration is loaded
	logger := logging.New(logging.LevelInfo, logging.FormatJSON)

	if err := run(*configPath, logger); err != nil {
		logger.Error("service failed", map[string]any{
			"error": err.Error(),
		})
		os.Exit(1)
	}
}

func run(configPath string, logger *logging.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err = newLogger(cfg)
	if err != nil {
		return err
	}

	logger.Info("QuietPlanet service starting", map[string]any{
		"version":          version,
		"commit":           commit,
		"listen_address":   cfg.ListenAddress(),
		"tls":              cfg.TLSEnabled(),
		"handshake_store":  cfg.HandshakeStore.Backend,
		"credential_store": cfg.CredentialStore.Backend,
		"rate_limit":       cfg.RateLimit.Enabled,
	})

	shutdown := lifecycle.NewShutdownManager(logger)
	ctx := shutdown.Start(context.Background())
	defer shutdown.Stop()

	timeout, err := cfg.GetShutdownTimeout()
	if err != nil {
		return err
	}
	defer func() {
		if err := lifecycle.GracefulShutdown(context.Background(), shutdown.Cleanup, timeout); err != nil {
			logger.Error("cleanup incomplete", map[string]any{"error": err.Error()})
		}
	}()

	handler, err := buildHandler(ctx, cfg, logger, shutdown)
	if err != nil {
		return err
	}

	server, err := api.New(cfg, logger, handler)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Notify systemd that the service is ready (Type=notify)
	notifySystemd("READY=1")

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("QuietPlanet service stopped", map[string]any{"reason": shutdown.Reason()})
	notifySystemd("STOPPING=1")

	return nil
}

// buildHandler wires stores, the authenticator and the router. Every opened resource is
// registered with shutdown for release.
func buildHandler(
	ctx context.Context,
	cfg *config.Config,
	logger *logging.Logger,
	shutdown *lifecycle.ShutdownManager,
) (http.Handler, error) {
	creds, err := openCredentialStore(ctx, cfg, logger, shutdown)
	if err != nil {
		return nil, err
	}

	handshakes, err := openHandshakeStore(ctx, cfg, shutdown)
	if err != nil {
		return nil, err
	}

	tokenTTL, err := cfg.GetTokenTTL()
	if err != nil {
		return nil, err
	}
	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		TTL:      tokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token issuer: %w", err)
	}

	handshakeTTL, err := cfg.GetHandshakeTTL()
	if err != nil {
		return nil, err
	}
	opts := []auth.AuthenticatorOption{auth.WithHandshakeTTL(handshakeTTL)}
	if cfg.Auth.DummySecret != "" {
		opts = append(opts, auth.WithDummySecret([]byte(cfg.Auth.DummySecret)))
	}

	authn, err := auth.NewAuthenticator(srp.NewServer(srp.DefaultGroup), creds, handshakes, tokens, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticator: %w", err)
	}

	var limiter *auth.RateLimiter
	if cfg.RateLimit.Enabled {
		delays, err := cfg.GetRateLimitDelays()
		if err != nil {
			return nil, err
		}
		lockout, err := cfg.GetRateLimitLockout()
		if err != nil {
			return nil, err
		}
		limiter = auth.NewRateLimiter(auth.RateLimitConfig{Delays: delays, Lockout: lockout})
		shutdown.OnShutdown("rate limiter", func(context.Context) error {
			limiter.Stop()
			return nil
		})
	}

	authHandler := handlers.NewAuthHandler(authn, logger, handlers.AuthHandlerConfig{
		RateLimiter:  limiter,
		AttemptTTL:   handshakeTTL,
		SecureCookie: cfg.TLSEnabled(),
	})

	return api.NewRouter(authHandler, middleware.NewAuthMiddleware(tokens), logger,
		api.WithShutdownCheck(shutdown.IsShutdown)), nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	logger := logging.New(level, format)
	for _, key := range cfg.Logging.RedactKeys {
		logger.Redactor().AddSensitiveKey(key)
	}
	return logger, nil
}

// notifySystemd sends a notification to systemd if NOTIFY_SOCKET is set.
func notifySystemd(state string) {
	notifySocket := os.Getenv("NOTIFY_SOCKET")
	if notifySocket == "" {
		return
	}

	conn, err := net.DialTimeout("unixgram", notifySocket, time.Second)
	if err != nil {
		// systemd notification is optional
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	_, _ = conn.Write([]byte(state))
}
