package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// MinSecretLength is the shortest accepted JWT or dummy secret.
const MinSecretLength = 32

// Validate performs comprehensive validation on the configuration.
func Validate(cfg *Config) error {
	if err := validateServer(cfg); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}

	if err := validateAuth(cfg); err != nil {
		return fmt.Errorf("auth validation failed: %w", err)
	}

	if err := validateStores(cfg); err != nil {
		return fmt.Errorf("store validation failed: %w", err)
	}

	if err := validateRateLimit(cfg); err != nil {
		return fmt.Errorf("rate limit validation failed: %w", err)
	}

	if err := validateLogging(cfg); err != nil {
		return fmt.Errorf("logging validation failed: %w", err)
	}

	return nil
}

func validateServer(cfg *Config) error {
	if strings.Contains(cfg.Server.Address, " ") {
		return fmt.Errorf("server.address contains invalid characters")
	}

	if _, err := cfg.GetShutdownTimeout(); err != nil {
		return err
	}

	if !cfg.TLSEnabled() {
		return nil
	}

	for name, path := range map[string]string{"tls_cert": cfg.Server.TLSCert, "tls_key": cfg.Server.TLSKey} {
		if !filepath.IsAbs(path) {
			return fmt.Errorf("server.%s must be an absolute path", name)
		}
		if cfg.Server.GenerateCert {
			continue
		}
		if _, err := os.Stat(filepath.Dir(path)); os.IsNotExist(err) {
			return fmt.Errorf("server.%s directory does not exist: %s", name, filepath.Dir(path))
		}
	}

	return nil
}

func validateAuth(cfg *Config) error {
	if _, err := cfg.GetHandshakeTTL(); err != nil {
		return err
	}

	if _, err := cfg.GetTokenTTL(); err != nil {
		return err
	}

	if len(cfg.Auth.JWTSecret) < MinSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", MinSecretLength)
	}

	// Optional; a random secret is generated when unset.
	if cfg.Auth.DummySecret != "" && len(cfg.Auth.DummySecret) < MinSecretLength {
		return fmt.Errorf("auth.dummy_secret must be at least %d bytes", MinSecretLength)
	}

	return nil
}

func validateStores(cfg *Config) error {
	handshakeBackends := []string{BackendMemory, BackendRedis}
	if !slices.Contains(handshakeBackends, cfg.HandshakeStore.Backend) {
		return fmt.Errorf("handshake_store.backend must be one of: %s", strings.Join(handshakeBackends, ", "))
	}

	if cfg.HandshakeStore.Redis.DB < 0 {
		return fmt.Errorf("handshake_store.redis.db must not be negative")
	}

	credentialBackends := []string{BackendMemory, BackendPostgres}
	if !slices.Contains(credentialBackends, cfg.CredentialStore.Backend) {
		return fmt.Errorf("credential_store.backend must be one of: %s", strings.Join(credentialBackends, ", "))
	}

	if seed := cfg.CredentialStore.SeedFile; seed != "" {
		if !filepath.IsAbs(seed) {
			return fmt.Errorf("credential_store.seed_file must be an absolute path")
		}
		if _, err := os.Stat(seed); err != nil {
			return fmt.Errorf("credential_store.seed_file: %w", err)
		}
	}

	return nil
}

func validateRateLimit(cfg *Config) error {
	if !cfg.RateLimit.Enabled {
		return nil
	}

	if _, err := cfg.GetRateLimitDelays(); err != nil {
		return err
	}

	if _, err := cfg.GetRateLimitLockout(); err != nil {
		return err
	}

	return nil
}

func validateLogging(cfg *Config) error {
	// Validate log level
	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, cfg.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %s", strings.Join(validLevels, ", "))
	}

	// Validate log format
	validFormats := []string{"json", "human"}
	if !slices.Contains(validFormats, cfg.Logging.Format) {
		return fmt.Errorf("logging.format must be one of: %s", strings.Join(validFormats, ", "))
	}

	return nil
}
