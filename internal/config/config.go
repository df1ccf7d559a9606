// Package config provides configuration loading and validation for the QuietPlanet service.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override secrets from the configuration file.
const (
	EnvJWTSecret   = "QUIETPLANET_JWT_SECRET"
	EnvDummySecret = "QUIETPLANET_DUMMY_SECRET"
	EnvPostgresDSN = "QUIETPLANET_POSTGRES_DSN"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config represents the QuietPlanet service configuration.
type Config struct {
	Server          ServerSettings          `yaml:"server"`
	Auth            AuthSettings            `yaml:"auth"`
	HandshakeStore  HandshakeStoreSettings  `yaml:"handshake_store"`
	CredentialStore CredentialStoreSettings `yaml:"credential_store"`
	RateLimit       RateLimitSettings       `yaml:"rate_limit"`
	Logging         LoggingSettings         `yaml:"logging"`
}

// ServerSettings contains HTTP listener configuration.
type ServerSettings struct {
	Address         string `yaml:"address"`
	Port            int    `yaml:"port"`
	TLSCert         string `yaml:"tls_cert"`
	TLSKey          string `yaml:"tls_key"`
	GenerateCert    bool   `yaml:"generate_cert"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// AuthSettings contains login and token configuration.
type AuthSettings struct {
	HandshakeTTL string `yaml:"handshake_ttl"`
	TokenTTL     string `yaml:"token_ttl"`
	Issuer       string `yaml:"issuer"`
	Audience     string `yaml:"audience"`
	JWTSecret    string `yaml:"jwt_secret"`
	DummySecret  string `yaml:"dummy_secret"`
}

// HandshakeStoreSettings selects where login attempts are kept between start and verify.
type HandshakeStoreSettings struct {
	Backend string        `yaml:"backend"`
	Redis   RedisSettings `yaml:"redis"`
}

// RedisSettings contains Redis connection configuration.
type RedisSettings struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// CredentialStoreSettings selects where user records are kept.
type CredentialStoreSettings struct {
	Backend  string `yaml:"backend"`
	DSN      string `yaml:"dsn"`
	SeedFile string `yaml:"seed_file,omitempty"`
}

// RateLimitSettings configures per-client delays after failed proofs.
type RateLimitSettings struct {
	Enabled bool     `yaml:"enabled"`
	Delays  []string `yaml:"delays"`
	Lockout string   `yaml:"lockout"`
}

// LoggingSettings contains logging configuration.
type LoggingSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`

	// RedactKeys are extra field names masked in log output.
	RedactKeys []string `yaml:"redact_keys,omitempty"`
}

// Load reads and parses the configuration file.
//
//nolint:gosec // G304: Config path is from command-line argument
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8443
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}
	if c.Auth.HandshakeTTL == "" {
		c.Auth.HandshakeTTL = "5m"
	}
	if c.Auth.TokenTTL == "" {
		c.Auth.TokenTTL = "1h"
	}
	if c.HandshakeStore.Backend == "" {
		c.HandshakeStore.Backend = BackendMemory
	}
	if c.CredentialStore.Backend == "" {
		c.CredentialStore.Backend = BackendMemory
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// applyEnv lets secrets be supplied outside the configuration file.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvJWTSecret); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv(EnvDummySecret); v != "" {
		c.Auth.DummySecret = v
	}
	if v := os.Getenv(EnvPostgresDSN); v != "" {
		c.CredentialStore.DSN = v
	}
}

// validate performs basic validation on the configuration.
// Detailed validation is in validate.go.
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return fmt.Errorf("server.tls_cert and server.tls_key must be set together")
	}

	if c.Server.GenerateCert && !c.TLSEnabled() {
		return fmt.Errorf("server.generate_cert requires server.tls_cert and server.tls_key")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (or set %s)", EnvJWTSecret)
	}

	if c.HandshakeStore.Backend == BackendRedis && c.HandshakeStore.Redis.Address == "" {
		return fmt.Errorf("handshake_store.redis.address is required when backend is redis")
	}

	if c.CredentialStore.Backend == BackendPostgres && c.CredentialStore.DSN == "" {
		return fmt.Errorf("credential_store.dsn is required when backend is postgres (or set %s)", EnvPostgresDSN)
	}

	return nil
}

// ListenAddress returns the host:port the server binds to.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// TLSEnabled reports whether a certificate and key are configured.
func (c *Config) TLSEnabled() bool {
	return c.Server.TLSCert != "" && c.Server.TLSKey != ""
}

// GetHandshakeTTL parses and returns how long a login attempt stays valid.
func (c *Config) GetHandshakeTTL() (time.Duration, error) {
	duration, err := time.ParseDuration(c.Auth.HandshakeTTL)
	if err != nil {
		return 0, fmt.Errorf("invalid handshake_ttl: %w", err)
	}

	if duration < 10*time.Second || duration > time.Hour {
		return 0, fmt.Errorf("handshake_ttl must be between 10s and 1h")
	}

	return duration, nil
}

// GetTokenTTL parses and returns the bearer token lifetime.
func (c *Config) GetTokenTTL() (time.Duration, error) {
	duration, err := time.ParseDuration(c.Auth.TokenTTL)
	if err != nil {
		return 0, fmt.Errorf("invalid token_ttl: %w", err)
	}

	if duration < time.Minute {
		return 0, fmt.Errorf("token_ttl must be at least 1 minute")
	}

	return duration, nil
}

// GetShutdownTimeout parses and returns the graceful shutdown deadline.
func (c *Config) GetShutdownTimeout() (time.Duration, error) {
	duration, err := time.ParseDuration(c.Server.ShutdownTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("shutdown_timeout must be positive")
	}
	return duration, nil
}

// GetRateLimitDelays parses the progressive delays. An empty list yields nil so the limiter
// applies its defaults.
func (c *Config) GetRateLimitDelays() ([]time.Duration, error) {
	if len(c.RateLimit.Delays) == 0 {
		return nil, nil
	}

	delays := make([]time.Duration, 0, len(c.RateLimit.Delays))
	for i, s := range c.RateLimit.Delays {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid rate_limit.delays[%d]: %w", i, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("rate_limit.delays[%d] must be positive", i)
		}
		delays = append(delays, d)
	}
	return delays, nil
}

// GetRateLimitLockout parses the lockout applied once every delay is used up. Zero means the
// limiter default.
func (c *Config) GetRateLimitLockout() (time.Duration, error) {
	if c.RateLimit.Lockout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.RateLimit.Lockout)
	if err != nil {
		return 0, fmt.Errorf("invalid rate_limit.lockout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("rate_limit.lockout must be positive")
	}
	return d, nil
}
