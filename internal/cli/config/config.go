package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort    = 8443
	configFileName = "config.yaml"
	envHost        = "QP_HOST"
	envPort        = "QP_PORT"
	envCACert      = "QP_CA_CERT"
	envPlaintext   = "QP_PLAINTEXT"
	minPort        = 1
	maxPort        = 65535
)

// Config holds the configuration for the qp CLI tool.
type Config struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	CACert string `yaml:"ca_cert,omitempty"`

	// Plaintext talks HTTP instead of HTTPS, for local development servers.
	Plaintext bool `yaml:"plaintext,omitempty"`
}

// Load loads configuration from the user config file and environment, in increasing order
// of precedence over the defaults. Command-line flags are applied afterwards by ApplyFlags.
func Load() (*Config, error) {
	cfg := &Config{
		Port: defaultPort,
	}

	// Config file is optional
	if err := cfg.loadFromFile(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func configPath() (string, error) {
	dir, err := UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

func (c *Config) loadFromFile() error {
	path, err := configPath()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path) // #nosec G304 - path is in the user config directory
	if err != nil {
		return err
	}

	var fileConfig Config
	if err := yaml.Unmarshal(data, &fileConfig); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fileConfig.Host != "" {
		c.Host = fileConfig.Host
	}
	if fileConfig.Port != 0 {
		c.Port = fileConfig.Port
	}
	if fileConfig.CACert != "" {
		c.CACert = fileConfig.CACert
	}
	c.Plaintext = c.Plaintext || fileConfig.Plaintext

	return nil
}

func (c *Config) loadFromEnv() {
	if host := os.Getenv(envHost); host != "" {
		c.Host = host
	}

	if portStr := os.Getenv(envPort); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			c.Port = port
		}
	}

	if caCert := os.Getenv(envCACert); caCert != "" {
		c.CACert = caCert
	}

	if v, err := strconv.ParseBool(os.Getenv(envPlaintext)); err == nil {
		c.Plaintext = v
	}
}

// ApplyFlags applies non-empty command-line flag values.
func (c *Config) ApplyFlags(host string, port int, caCert string) {
	if host != "" {
		c.Host = host
	}
	if port != 0 {
		c.Port = port
	}
	if caCert != "" {
		c.CACert = caCert
	}
}

// Validate validates the configuration values. An empty host is allowed here since not
// every command talks to a server.
func (c *Config) Validate() error {
	if c.Port < minPort || c.Port > maxPort {
		return fmt.Errorf("invalid port %d: must be between %d and %d", c.Port, minPort, maxPort)
	}

	if c.CACert != "" {
		if _, err := os.Stat(c.CACert); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("CA certificate file not found: %s", c.CACert)
			}
			return fmt.Errorf("failed to access CA certificate file %s: %w", c.CACert, err)
		}
	}

	if c.Plaintext && c.CACert != "" {
		return fmt.Errorf("ca_cert cannot be used with plaintext connections")
	}

	return nil
}

// RequireHost returns a helpful error when no host is configured.
func (c *Config) RequireHost() error {
	if c.Host == "" {
		return fmt.Errorf("QuietPlanet server host not specified\n"+
			"Use --host flag, %s environment variable, or add 'host:' to config file:\n"+
			"  Config file location: <UserConfigDir>/quietplanet/config.yaml\n"+
			"  Example: host: login.quietplanet.example", envHost)
	}
	return nil
}

// Address returns the host:port address of the server.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// BaseURL returns the server URL without a trailing slash.
func (c *Config) BaseURL() string {
	scheme := "https"
	if c.Plaintext {
		scheme = "http"
	}
	return scheme + "://" + c.Address()
}

// Save writes the connection settings to the user config file so later commands can omit
// --host.
func (c *Config) Save() error {
	dir, err := UserConfigDir()
	if err != nil {
		return err
	}
	if err := EnsureDir(dir); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, configFileName), data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
