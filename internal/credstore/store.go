// Package credstore holds user credential records (salt, SRP verifier, role) and the
// authentication event log.
package credstore

//go:generate go tool mockgen -source=store.go -destination=mock_store.go -package=credstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when no record exists for a username.
	ErrNotFound = errors.New("user not found")

	// ErrAlreadyExists is returned when registering a taken username.
	ErrAlreadyExists = errors.New("user already exists")

	// ErrInvalidRole is returned for a role outside the known set.
	ErrInvalidRole = errors.New("invalid role")
)

// Role is a user's authorization level.
type Role string

// Known roles.
const (
	RoleUser    Role = "User"
	RoleDonator Role = "Donator"
	RoleAdmin   Role = "Admin"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleUser, RoleDonator, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// Event is an authentication log event.
type Event string

// Logged events.
const (
	EventLogin  Event = "Login"
	EventLogout Event = "Logout"
)

// Record is a stored credential. Salt and Verifier are decimal strings.
type Record struct {
	Username  string
	Salt      string
	Verifier  string
	Role      Role
	CreatedAt time.Time
}

// Store is the credential store used by the authenticator.
type Store interface {
	// Lookup returns the record for username or ErrNotFound.
	Lookup(ctx context.Context, username string) (*Record, error)

	// Register inserts a new record with RoleUser, or returns ErrAlreadyExists.
	Register(ctx context.Context, username, salt, verifier string) error

	// UpdateRole changes a user's role, or returns ErrNotFound.
	UpdateRole(ctx context.Context, username string, role Role) error

	// LogAuthEvent appends an authentication event for username.
	LogAuthEvent(ctx context.Context, username string, event Event) error
}
