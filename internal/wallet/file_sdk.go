package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// ErrNoSession is returned when the wallet has not written a session
var ErrNoSession = errors.New("no wallet session")

// FileSDK reads the session a wallet persisted as JSON. The file belongs to
// the wallet; FileSDK never writes it.
type FileSDK struct {
	path string
	poll time.Duration

	mu           sync.Mutex
	disconnected bool
}

// NewFileSDK creates an SDK over the session file at path
func NewFileSDK(path string) *FileSDK {
	return &FileSDK{path: path, poll: 250 * time.Millisecond}
}

// FileFactory returns a Factory producing a FileSDK for path
func FileFactory(path string) Factory {
	return func(context.Context) (SDK, error) {
		if path == "" {
			return nil, errors.New("session file not configured")
		}
		return NewFileSDK(path), nil
	}
}

// Connect waits until the wallet has written a readable session or ctx is
// done
func (f *FileSDK) Connect(ctx context.Context) error {
	for {
		if _, err := f.read(); err == nil {
			f.mu.Lock()
			f.disconnected = false
			f.mu.Unlock()
			return nil
		} else if !errors.Is(err, ErrNoSession) {
			return err
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w at %s: %v", ErrNoSession, f.path, ctx.Err())
		case <-time.After(f.poll):
		}
	}
}

// Disconnect hides the session from this process
func (f *FileSDK) Disconnect() {
	f.mu.Lock()
	f.disconnected = true
	f.mu.Unlock()
}

// IsConnected reports whether a session file is present
func (f *FileSDK) IsConnected() bool {
	f.mu.Lock()
	disconnected := f.disconnected
	f.mu.Unlock()
	if disconnected {
		return false
	}
	_, err := f.read()
	return err == nil
}

// LocalStorage returns the parsed session
func (f *FileSDK) LocalStorage() (map[string]any, error) {
	f.mu.Lock()
	disconnected := f.disconnected
	f.mu.Unlock()
	if disconnected {
		return nil, ErrNoSession
	}
	return f.read()
}

func (f *FileSDK) read() (map[string]any, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var storage map[string]any
	if err := json.Unmarshal(data, &storage); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	return storage, nil
}
