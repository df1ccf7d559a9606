// Package session provides bearer token storage for the qp CLI tool.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fzdarsky/quietplanet/internal/cli/config"
)

const tokenFileMode = 0o600

// ErrNoSession is returned when no token is stored for a server.
var ErrNoSession = errors.New("not logged in")

// Session is a bearer token obtained from a successful login.
type Session struct {
	Username  string    `yaml:"username"`
	Token     string    `yaml:"token"`
	ExpiresAt time.Time `yaml:"expires_at,omitempty"`
}

// Expired reports whether the token has passed its expiry. A zero expiry never expires.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Store persists one session per server address in the user cache directory.
type Store struct {
	dir string
}

// NewStore creates a store in the OS-specific cache directory.
func NewStore() (*Store, error) {
	cacheDir, err := config.UserCacheDir()
	if err != nil {
		return nil, err
	}

	if err := config.EnsureDir(cacheDir); err != nil {
		return nil, err
	}

	return &Store{dir: cacheDir}, nil
}

// Save stores s for the server at addr, replacing any previous session.
func (s *Store) Save(addr string, sess *Session) error {
	data, err := yaml.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := os.WriteFile(s.filename(addr), data, tokenFileMode); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Load returns the session for addr, or ErrNoSession.
func (s *Store) Load(addr string) (*Session, error) {
	data, err := os.ReadFile(s.filename(addr)) // #nosec G304 - filename is derived from a hash of addr
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var sess Session
	if err := yaml.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	if sess.Token == "" {
		return nil, ErrNoSession
	}
	return &sess, nil
}

// Delete removes the session for addr. Deleting a missing session is not an error.
func (s *Store) Delete(addr string) error {
	if err := os.Remove(s.filename(addr)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// filename is session-<first 8 bytes of sha256(addr) in hex>.yaml.
func (s *Store) filename(addr string) string {
	hash := sha256.Sum256([]byte(addr))
	return filepath.Join(s.dir, "session-"+hex.EncodeToString(hash[:8])+".yaml")
}
