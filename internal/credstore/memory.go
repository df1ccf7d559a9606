package credstore

import (
	"context"
	"sync"
	"time"
)

// AuthEvent is one entry of the in-memory event log.
type AuthEvent struct {
	Username string
	Event    Event
	At       time.Time
}

// RoleChange is one entry of the in-memory role history.
type RoleChange struct {
	Username string
	OldRole  Role
	NewRole  Role
	At       time.Time
}

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	events  []AuthEvent
	roles   []RoleChange
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		now:     time.Now,
	}
}

// Lookup implements Store.
func (s *MemoryStore) Lookup(_ context.Context, username string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[username]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// Register implements Store.
func (s *MemoryStore) Register(_ context.Context, username, salt, verifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[username]; exists {
		return ErrAlreadyExists
	}

	s.records[username] = Record{
		Username:  username,
		Salt:      salt,
		Verifier:  verifier,
		Role:      RoleUser,
		CreatedAt: s.now(),
	}
	return nil
}

// UpdateRole implements Store.
func (s *MemoryStore) UpdateRole(_ context.Context, username string, role Role) error {
	if _, err := ParseRole(string(role)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[username]
	if !ok {
		return ErrNotFound
	}
	if rec.Role != role {
		s.roles = append(s.roles, RoleChange{Username: username, OldRole: rec.Role, NewRole: role, At: s.now()})
	}
	rec.Role = role
	s.records[username] = rec
	return nil
}

// LogAuthEvent implements Store.
func (s *MemoryStore) LogAuthEvent(_ context.Context, username string, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, AuthEvent{Username: username, Event: event, At: s.now()})
	return nil
}

// Events returns a copy of the event log.
func (s *MemoryStore) Events() []AuthEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]AuthEvent(nil), s.events...)
}

// RoleChanges returns a copy of the role history.
func (s *MemoryStore) RoleChanges() []RoleChange {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]RoleChange(nil), s.roles...)
}
