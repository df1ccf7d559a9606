package auth

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrHandshakeNotFound is returned when no live state exists for an attempt id.
	ErrHandshakeNotFound = errors.New("handshake state not found")

	// ErrHandshakeExists is returned when a live state already exists for an attempt id.
	ErrHandshakeExists = errors.New("handshake state already exists")
)

// HandshakeStore keeps opaque server handshake state between login start and verify.
// Implementations expire entries after their TTL and allow at most one live entry per id.
type HandshakeStore interface {
	// Put stores state under id. It fails with ErrHandshakeExists if a live entry exists.
	Put(ctx context.Context, id string, state []byte, ttl time.Duration) error

	// Get returns the state for id, or ErrHandshakeNotFound if absent or expired.
	Get(ctx context.Context, id string) ([]byte, error)

	// Clear removes the state for id and reports whether a live entry was removed.
	// Clearing a missing id is not an error.
	Clear(ctx context.Context, id string) (bool, error)
}

// handshakeEntry holds a stored state with expiry time.
type handshakeEntry struct {
	state     []byte
	expiresAt time.Time
}

// MemoryHandshakeStore is a process-local HandshakeStore.
// It provides thread-safe storage with automatic cleanup of expired entries.
type MemoryHandshakeStore struct {
	mu      sync.Mutex
	entries map[string]handshakeEntry
	now     func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMemoryHandshakeStore creates a store that sweeps expired entries every cleanupInterval.
func NewMemoryHandshakeStore(cleanupInterval time.Duration) *MemoryHandshakeStore {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	store := &MemoryHandshakeStore{
		entries: make(map[string]handshakeEntry),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	go store.cleanupLoop(cleanupInterval)

	return store
}

// Put implements HandshakeStore.
func (s *MemoryHandshakeStore) Put(_ context.Context, id string, state []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if entry, exists := s.entries[id]; exists && now.Before(entry.expiresAt) {
		return ErrHandshakeExists
	}

	s.entries[id] = handshakeEntry{
		state:     append([]byte(nil), state...),
		expiresAt: now.Add(ttl),
	}
	return nil
}

// Get implements HandshakeStore.
func (s *MemoryHandshakeStore) Get(_ context.Context, id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[id]
	if !exists {
		return nil, ErrHandshakeNotFound
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.entries, id)
		return nil, ErrHandshakeNotFound
	}

	return append([]byte(nil), entry.state...), nil
}

// Clear implements HandshakeStore.
func (s *MemoryHandshakeStore) Clear(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[id]
	if !exists {
		return false, nil
	}
	delete(s.entries, id)
	clear(entry.state)

	return s.now().Before(entry.expiresAt), nil
}

// Count returns the number of stored entries, expired or not.
func (s *MemoryHandshakeStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop stops the background cleanup goroutine. It is safe to call more than once.
func (s *MemoryHandshakeStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *MemoryHandshakeStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup removes all expired entries.
func (s *MemoryHandshakeStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, id)
			clear(entry.state)
		}
	}
}
