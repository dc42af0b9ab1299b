package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrSDKNotLoaded is returned by Connect before a successful Init
	ErrSDKNotLoaded = errors.New("wallet SDK not loaded")
	// ErrNoAddress is returned when the wallet connected without exposing an address
	ErrNoAddress = errors.New("connected but no address found")
)

// User-facing session errors
const (
	msgLoadFailed = "Wallet SDK failed to load. Please try again."
	msgNotLoaded  = "Wallet SDK not loaded. Please try again."
	msgNoAddress  = "Connected but no address found. Please try again."
)

// DefaultSettleDelay is how long Connect waits for the wallet to write its
// storage after the connection flow returns
const DefaultSettleDelay = 500 * time.Millisecond

// Session is the observable connection state
type Session struct {
	Connected bool   `json:"isConnected"`
	Address   string `json:"userAddress,omitempty"`
	Loading   bool   `json:"isLoading"`
	Error     string `json:"error,omitempty"`
}

// ManagerOptions configures a Manager. A negative SettleDelay disables the
// wait.
type ManagerOptions struct {
	Mainnet     bool
	SettleDelay time.Duration
	Strategies  []Strategy
	Logger      *zap.Logger
}

// Manager owns the session state on top of a lazily loaded SDK
type Manager struct {
	loader     *Loader
	mainnet    bool
	settle     time.Duration
	strategies []Strategy
	logger     *zap.Logger

	mu      sync.RWMutex
	sdk     SDK
	session Session
}

// NewManager creates a manager. The session starts in the loading state
// until Init completes.
func NewManager(loader *Loader, opts ManagerOptions) *Manager {
	switch {
	case opts.SettleDelay == 0:
		opts.SettleDelay = DefaultSettleDelay
	case opts.SettleDelay < 0:
		opts.SettleDelay = 0
	}
	if opts.Strategies == nil {
		opts.Strategies = DefaultStrategies
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Manager{
		loader:     loader,
		mainnet:    opts.Mainnet,
		settle:     opts.SettleDelay,
		strategies: opts.Strategies,
		logger:     opts.Logger.Named("wallet"),
		session:    Session{Loading: true},
	}
}

// Init loads the SDK and picks up an existing connection. It never fails:
// outside an interactive context the session is simply empty, and probe
// errors are logged and treated as no session.
func (m *Manager) Init(ctx context.Context) Session {
	sdk, err := m.loader.Load(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.Loading = false

	if err != nil {
		if !errors.Is(err, ErrNotInteractive) {
			m.logger.Error("failed to load wallet SDK", zap.Error(err))
			m.session.Error = msgLoadFailed
		}
		return m.session
	}
	m.sdk = sdk

	if addr, ok := m.probe(); ok {
		m.session.Connected = true
		m.session.Address = addr
	}
	return m.session
}

func (m *Manager) probe() (addr string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Info("connection check failed", zap.Any("panic", r))
			addr, ok = "", false
		}
	}()

	if !m.sdk.IsConnected() {
		return "", false
	}
	storage, err := m.sdk.LocalStorage()
	if err != nil {
		m.logger.Info("connection check failed", zap.Error(err))
		return "", false
	}
	return ExtractAddress(storage, m.mainnet, m.strategies)
}

// Connect runs the wallet connection flow and resolves once an address is
// available
func (m *Manager) Connect(ctx context.Context) (string, error) {
	m.mu.Lock()
	sdk := m.sdk
	if sdk == nil {
		m.session.Error = msgNotLoaded
		m.mu.Unlock()
		return "", ErrSDKNotLoaded
	}
	m.session.Error = ""
	m.mu.Unlock()

	if err := sdk.Connect(ctx); err != nil {
		m.logger.Error("connection error", zap.Error(err))
		m.setError(fmt.Sprintf("Failed to connect: %s", err.Error()))
		return "", fmt.Errorf("failed to connect: %w", err)
	}

	if m.settle > 0 {
		select {
		case <-time.After(m.settle):
		case <-ctx.Done():
			m.setError(fmt.Sprintf("Failed to connect: %s", ctx.Err().Error()))
			return "", fmt.Errorf("failed to connect: %w", ctx.Err())
		}
	}

	storage, err := sdk.LocalStorage()
	if err != nil {
		m.setError(fmt.Sprintf("Failed to connect: %s", err.Error()))
		return "", fmt.Errorf("failed to read wallet storage: %w", err)
	}
	addr, ok := ExtractAddress(storage, m.mainnet, m.strategies)
	if !ok {
		m.setError(msgNoAddress)
		return "", ErrNoAddress
	}

	m.mu.Lock()
	m.session.Connected = true
	m.session.Address = addr
	m.session.Error = ""
	m.mu.Unlock()

	m.logger.Info("wallet connected", zap.String("address", addr))
	return addr, nil
}

// Disconnect clears the session. It never fails.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sdk != nil {
		m.sdk.Disconnect()
	}
	m.session.Connected = false
	m.session.Address = ""
	m.session.Error = ""
}

// Session returns a copy of the current state
func (m *Manager) Session() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// Address returns the active address, empty when disconnected
func (m *Manager) Address() string {
	return m.Session().Address
}

func (m *Manager) setError(msg string) {
	m.mu.Lock()
	m.session.Error = msg
	m.mu.Unlock()
}
