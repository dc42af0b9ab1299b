// Package config provides configuration management
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// NetworkMainnet selects the primary Stacks network
	NetworkMainnet = "mainnet"
	// NetworkTestnet selects the secondary Stacks network
	NetworkTestnet = "testnet"

	mainnetAPIURL = "https://api.mainnet.hiro.so"
	testnetAPIURL = "https://api.testnet.hiro.so"
)

// Config holds the application configuration
type Config struct {
	// Server configuration
	ServerHost string
	ServerPort string

	// Network (mainnet, testnet)
	Network string

	// Contract configuration
	ContractAddress string
	ContractName    string

	// Hosted API configuration
	APIKey          string
	UpstreamTimeout time.Duration

	// Wallet configuration
	WalletConnectProjectID string
	SessionFile            string

	// Snapshot refresh period
	RefreshInterval time.Duration

	// Origins allowed by CORS; "*" allows any
	CORSOrigins []string

	// Logging
	LogLevel string
	LogFile  string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (optional)
	_ = godotenv.Load()

	config := &Config{
		ServerHost:             getEnv("SERVER_HOST", "0.0.0.0"),
		ServerPort:             getEnv("SERVER_PORT", "3000"),
		Network:                getEnv("STACKS_NETWORK", NetworkMainnet),
		ContractAddress:        getEnv("CONTRACT_ADDRESS", "SP1ZGGS886YCZHMFXJR1EK61ZP34FNWNSX32N685T"),
		ContractName:           getEnv("CONTRACT_NAME", "daily-raffle-v2"),
		APIKey:                 getEnv("HIRO_API_KEY", ""),
		UpstreamTimeout:        getDurationEnv("UPSTREAM_TIMEOUT", 30*time.Second),
		WalletConnectProjectID: getEnv("WALLETCONNECT_PROJECT_ID", ""),
		SessionFile:            getEnv("SESSION_FILE", ""),
		RefreshInterval:        getDurationEnv("REFRESH_INTERVAL", 30*time.Second),
		CORSOrigins:            getListEnv("CORS_ORIGINS", []string{"*"}),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		LogFile:                getEnv("LOG_FILE", ""),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks presence of the required fields
func (c *Config) Validate() error {
	if c.ContractAddress == "" || c.ContractName == "" {
		return fmt.Errorf("CONTRACT_ADDRESS and CONTRACT_NAME are required")
	}
	if c.Network != NetworkMainnet && c.Network != NetworkTestnet {
		return fmt.Errorf("unknown network: %s", c.Network)
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("REFRESH_INTERVAL must be positive")
	}
	return nil
}

// IsMainnet reports whether the primary network is selected
func (c *Config) IsMainnet() bool {
	return c.Network == NetworkMainnet
}

// APIBaseURL returns the hosted read-only API for the selected network
func (c *Config) APIBaseURL() string {
	if c.IsMainnet() {
		return mainnetAPIURL
	}
	return testnetAPIURL
}

// ListenAddr returns host:port for the HTTP server
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%s", c.ServerHost, c.ServerPort)
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getListEnv splits a comma-separated variable
func getListEnv(key string, defaultValue []string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// getDurationEnv accepts either a Go duration ("45s") or plain seconds ("45")
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
