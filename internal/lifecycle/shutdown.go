// Package lifecycle coordinates signal-driven shutdown and resource cleanup.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fzdarsky/quietplanet/internal/logging"
)

// CleanupFunc releases a resource during shutdown.
type CleanupFunc func(context.Context) error

type cleanupHook struct {
	name string
	fn   CleanupFunc
}

// ShutdownManager handles graceful service shutdown.
type ShutdownManager struct {
	shutdownChan chan struct{}
	signalChan   chan os.Signal
	logger       *logging.Logger
	mu           sync.Mutex
	shutdown     bool
	stopped      bool
	reason       string
	hooks        []cleanupHook
}

// NewShutdownManager creates a new shutdown manager.
func NewShutdownManager(logger *logging.Logger) *ShutdownManager {
	return &ShutdownManager{
		shutdownChan: make(chan struct{}, 1),
		signalChan:   make(chan os.Signal, 1),
		logger:       logger,
	}
}

// Start begins listening for shutdown signals (SIGTERM, SIGINT).
// Returns a context that will be cancelled when shutdown is initiated.
func (sm *ShutdownManager) Start(ctx context.Context) context.Context {
	signal.Notify(sm.signalChan, syscall.SIGTERM, syscall.SIGINT)

	shutdownCtx, cancel := context.WithCancel(ctx)

	go func() {
		select {
		case sig := <-sm.signalChan:
			sm.mu.Lock()
			if !sm.shutdown {
				sm.shutdown = true
				sm.reason = fmt.Sprintf("received signal: %v", sig)
			}
			sm.mu.Unlock()
			cancel()

		case <-sm.shutdownChan:
			cancel()

		case <-ctx.Done():
			cancel()
		}
	}()

	return shutdownCtx
}

// Shutdown initiates a graceful shutdown with the given reason.
func (sm *ShutdownManager) Shutdown(reason string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return
	}

	sm.shutdown = true
	sm.reason = reason

	select {
	case sm.shutdownChan <- struct{}{}:
	default:
	}
}

// IsShutdown returns whether shutdown has been initiated.
func (sm *ShutdownManager) IsShutdown() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.shutdown
}

// Reason returns the reason for shutdown.
func (sm *ShutdownManager) Reason() string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.reason
}

// OnShutdown registers fn to run during Cleanup. Hooks run in reverse registration order,
// so resources opened first are released last.
func (sm *ShutdownManager) OnShutdown(name string, fn CleanupFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.hooks = append(sm.hooks, cleanupHook{name: name, fn: fn})
}

// Cleanup runs every registered hook once, even when earlier hooks fail, and returns the
// joined errors.
func (sm *ShutdownManager) Cleanup(ctx context.Context) error {
	sm.mu.Lock()
	hooks := sm.hooks
	sm.hooks = nil
	sm.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if err := h.fn(ctx); err != nil {
			sm.logger.Error("cleanup failed", map[string]any{
				"resource": h.name,
				"error":    err.Error(),
			})
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			continue
		}
		sm.logger.Debug("released resource", map[string]any{"resource": h.name})
	}
	return errors.Join(errs...)
}

// Stop stops listening for signals and closes channels.
func (sm *ShutdownManager) Stop() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.stopped {
		return
	}

	sm.stopped = true
	signal.Stop(sm.signalChan)
	close(sm.signalChan)
	close(sm.shutdownChan)
}

// GracefulShutdown performs a graceful shutdown of the given shutdownFunc
// with a timeout. If the shutdown takes longer than timeout, it forces shutdown.
func GracefulShutdown(ctx context.Context, shutdownFunc func(context.Context) error, timeout time.Duration) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)

	go func() {
		done <- shutdownFunc(shutdownCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-shutdownCtx.Done():
		return fmt.Errorf("shutdown timed out after %v", timeout)
	}
}
