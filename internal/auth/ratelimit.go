package auth

import (
	"sync"
	"time"
)

const (
	// DefaultLockout is applied once every progressive delay has been used up.
	DefaultLockout = 60 * time.Second

	// CleanupThreshold is how long to keep attempt trackers for inactive clients
	CleanupThreshold = 5 * time.Minute

	// CleanupIntervalRateLimit is how often to clean up inactive client trackers
	CleanupIntervalRateLimit = 2 * time.Minute
)

// DefaultDelays are the waits enforced after the 1st, 2nd and 3rd consecutive failure.
var DefaultDelays = []time.Duration{1 * time.Second, 2 * time.Second, 5 * time.Second}

// RateLimitConfig tunes the limiter.
type RateLimitConfig struct {
	// Delays[i] is enforced after failure i+1.
	Delays []time.Duration

	// Lockout is enforced after every failure beyond len(Delays).
	Lockout time.Duration
}

// attemptTracker tracks failed proofs for a single client.
type attemptTracker struct {
	count        int
	lastFailed   time.Time
	blockedUntil time.Time
	inFlight     bool
}

// RateLimiter implements progressive delay brute force protection.
// Delays increase with each failed attempt: 1s, 2s, 5s, then 60s lockouts by default.
type RateLimiter struct {
	mu       sync.Mutex
	attempts map[string]*attemptTracker // key: client IP address
	delays   []time.Duration
	lockout  time.Duration
	now      func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a new rate limiter with background cleanup.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	delays := cfg.Delays
	if delays == nil {
		delays = DefaultDelays
	}
	lockout := cfg.Lockout
	if lockout <= 0 {
		lockout = DefaultLockout
	}

	rl := &RateLimiter{
		attempts: make(map[string]*attemptTracker),
		delays:   append([]time.Duration(nil), delays...),
		lockout:  lockout,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}

	go rl.cleanupInactiveClients()

	return rl
}

// Check reports whether the client may attempt a proof now. When it may not, the remaining
// wait is returned together with ErrRateLimited.
func (rl *RateLimiter) Check(clientIP string) (time.Duration, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	tracker, exists := rl.attempts[clientIP]
	if !exists {
		return 0, nil
	}

	if wait := tracker.blockedUntil.Sub(rl.now()); wait > 0 {
		return wait, ErrRateLimited
	}
	return 0, nil
}

// ProofSlot is a client's reservation to have one proof evaluated. Exactly one of Fail,
// Succeed or Release takes effect; later calls are no-ops.
type ProofSlot struct {
	rl       *RateLimiter
	clientIP string
	tracker  *attemptTracker
	done     bool
}

// BeginProof reserves the client's proof slot. A client has at most one proof in flight, so
// parallel guesses cannot all pass before the first failure is recorded. When the client is
// blocked or already has a proof in flight, the wait is returned together with ErrRateLimited.
func (rl *RateLimiter) BeginProof(clientIP string) (*ProofSlot, time.Duration, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	tracker, exists := rl.attempts[clientIP]
	if !exists {
		tracker = &attemptTracker{}
		rl.attempts[clientIP] = tracker
	}

	if wait := tracker.blockedUntil.Sub(rl.now()); wait > 0 {
		return nil, wait, ErrRateLimited
	}
	if tracker.inFlight {
		return nil, rl.delayFor(tracker.count + 1), ErrRateLimited
	}

	tracker.inFlight = true
	return &ProofSlot{rl: rl, clientIP: clientIP, tracker: tracker}, 0, nil
}

// Fail records a failed proof, releases the slot and returns the wait now imposed.
func (s *ProofSlot) Fail() time.Duration {
	s.rl.mu.Lock()
	defer s.rl.mu.Unlock()

	if s.done {
		return 0
	}
	s.done = true
	s.tracker.inFlight = false
	s.rl.attempts[s.clientIP] = s.tracker
	return s.rl.recordFailureLocked(s.tracker)
}

// Succeed clears the client's failures and releases the slot.
func (s *ProofSlot) Succeed() {
	s.rl.mu.Lock()
	defer s.rl.mu.Unlock()

	if s.done {
		return
	}
	s.done = true
	s.tracker.inFlight = false
	if s.rl.attempts[s.clientIP] == s.tracker {
		delete(s.rl.attempts, s.clientIP)
	}
}

// Release frees the slot without recording an outcome, for requests that never reached a
// proof comparison.
func (s *ProofSlot) Release() {
	s.rl.mu.Lock()
	defer s.rl.mu.Unlock()

	if s.done {
		return
	}
	s.done = true
	s.tracker.inFlight = false
}

func (rl *RateLimiter) recordFailureLocked(tracker *attemptTracker) time.Duration {
	now := rl.now()
	tracker.count++
	tracker.lastFailed = now

	delay := rl.delayFor(tracker.count)
	tracker.blockedUntil = now.Add(delay)
	return delay
}

// Stop stops the background cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) delayFor(count int) time.Duration {
	if count >= 1 && count <= len(rl.delays) {
		return rl.delays[count-1]
	}
	return rl.lockout
}

func (rl *RateLimiter) cleanupInactiveClients() {
	ticker := time.NewTicker(CleanupIntervalRateLimit)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.performCleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// performCleanup removes trackers for clients that are not blocked, have no proof in flight
// and have been quiet for CleanupThreshold.
func (rl *RateLimiter) performCleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-CleanupThreshold)

	for clientIP, tracker := range rl.attempts {
		if !tracker.inFlight && tracker.lastFailed.Before(cutoff) && !now.Before(tracker.blockedUntil) {
			delete(rl.attempts, clientIP)
		}
	}
}

// FormatRetryAfter formats a duration as seconds for use in HTTP Retry-After header.
// Returns the number of seconds rounded up to the nearest integer.
func FormatRetryAfter(d time.Duration) int {
	seconds := int(d / time.Second)
	if d%time.Second > 0 {
		seconds++
	}
	return seconds
}
