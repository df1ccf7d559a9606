package auth

import "time"

// SetClock replaces the limiter's time source.
func (rl *RateLimiter) SetClock(now func() time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.now = now
}

// RecordFailure records a failed proof outside a proof slot.
func (rl *RateLimiter) RecordFailure(clientIP string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	tracker, exists := rl.attempts[clientIP]
	if !exists {
		tracker = &attemptTracker{}
		rl.attempts[clientIP] = tracker
	}
	return rl.recordFailureLocked(tracker)
}

// RecordSuccess clears the failure count and any wait for a client.
func (rl *RateLimiter) RecordSuccess(clientIP string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.attempts, clientIP)
}

// AttemptCount returns the current failure count for a client.
func (rl *RateLimiter) AttemptCount(clientIP string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if tracker, ok := rl.attempts[clientIP]; ok {
		return tracker.count
	}
	return 0
}

// TrackedClientCount returns the number of clients currently being tracked.
func (rl *RateLimiter) TrackedClientCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return len(rl.attempts)
}

// Cleanup runs one sweep of inactive trackers.
func (rl *RateLimiter) Cleanup() {
	rl.performCleanup()
}

// SetClock replaces the store's time source.
func (s *MemoryHandshakeStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Cleanup runs one sweep of expired entries.
func (s *MemoryHandshakeStore) Cleanup() {
	s.cleanup()
}

// SetClock replaces the issuer's time source.
func (t *TokenIssuer) SetClock(now func() time.Time) {
	t.now = now
}

// DummyCredentials exposes the fake credentials used for unknown users.
func (a *Authenticator) DummyCredentials(username string) (salt, verifier string) {
	return a.dummy.forUser(username)
}
