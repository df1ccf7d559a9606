// Package clicontext provides global CLI context and state management.
package clicontext

import "sync"

// Global holds flags that affect all qp commands.
type Global struct {
	// AssumeYes answers 'yes' to every prompt, for scripts and CI.
	// It trusts unknown server certificates without asking.
	AssumeYes bool
}

var (
	globalContext = Global{}
	mu            sync.RWMutex
)

// Set replaces the global CLI context.
func Set(g Global) {
	mu.Lock()
	defer mu.Unlock()
	globalContext = g
}

// Get returns a copy of the global CLI context.
func Get() Global {
	mu.RLock()
	defer mu.RUnlock()
	return globalContext
}

// AssumeYes returns whether the CLI is in assume-yes mode.
func AssumeYes() bool {
	return Get().AssumeYes
}
