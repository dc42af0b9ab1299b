// Package wallet tracks the connection state of an externally supplied
// wallet SDK and resolves the active Stacks address from its storage.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/term"
)

// ErrNotInteractive is returned when the SDK is requested outside an
// interactive client context
var ErrNotInteractive = errors.New("wallet SDK is only available in an interactive session")

// SDK is the wallet capability. Signing and session persistence stay inside
// the implementation.
type SDK interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
	LocalStorage() (map[string]any, error)
}

// Environment reports whether the process runs in an interactive client
type Environment interface {
	Interactive() bool
}

// EnvironmentFunc adapts a function to Environment
type EnvironmentFunc func() bool

// Interactive implements Environment
func (f EnvironmentFunc) Interactive() bool { return f() }

// TerminalEnvironment is interactive when f is attached to a terminal
func TerminalEnvironment(f *os.File) Environment {
	return EnvironmentFunc(func() bool {
		return term.IsTerminal(int(f.Fd()))
	})
}

// Factory creates the SDK on first use
type Factory func(ctx context.Context) (SDK, error)

// Loader creates the SDK lazily and at most once
type Loader struct {
	env     Environment
	factory Factory

	mu     sync.Mutex
	loaded bool
	sdk    SDK
	err    error
}

// NewLoader creates a loader gated on env
func NewLoader(env Environment, factory Factory) *Loader {
	return &Loader{env: env, factory: factory}
}

// Load returns the SDK, creating it on the first call. Outside an
// interactive context it fails with ErrNotInteractive without touching the
// factory. A factory failure is remembered.
func (l *Loader) Load(ctx context.Context) (SDK, error) {
	if l.env != nil && !l.env.Interactive() {
		return nil, ErrNotInteractive
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded {
		return l.sdk, l.err
	}

	l.sdk, l.err = l.factory(ctx)
	if l.err != nil {
		l.sdk = nil
		l.err = fmt.Errorf("failed to load wallet SDK: %w", l.err)
	}
	l.loaded = true
	return l.sdk, l.err
}
