// Package config loads bridge configuration from environment variables,
// with an optional .env file read first.
package config

import (
	"os"
	"strconv"
	"strings"

	"log/slog"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the browser-automation bridge.
type Config struct {
	// External API (C6 external caller interface)
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool

	// Context factory mode: "persistent" or "relay"
	ContextMode string

	// Persistent context factory
	ProfileDirOverride string
	WindowSize         string

	// Relay-backed context factory / CDP Relay Server (C5)
	RelayHost string // bind host for the relay's two WebSocket endpoints

	// Timeouts (ms), per spec.md §4.2 "Navigation policy in openTab"
	OperationTimeoutMS int
	NavigationTimeoutMS int
	RootSelectorWaitMS  int
	SettleDelayMS       int

	// Logging
	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		BindAddr:         getEnvOrDefault("BRIDGE_BIND_ADDR", "127.0.0.1:8765"),
		PortCandidates:   getEnvListOrDefault("BRIDGE_BIND_CANDIDATES", []string{"127.0.0.1:8766", "127.0.0.1:8767", "127.0.0.1:0"}),
		PortAutoFallback: getEnvBoolOrDefault("BRIDGE_BIND_AUTO_FALLBACK", true),

		ContextMode: strings.ToLower(getEnvOrDefault("BRIDGE_CONTEXT_MODE", "persistent")),

		ProfileDirOverride: getEnvOrDefault("BRIDGE_PROFILE_DIR", ""),
		WindowSize:         getEnvOrDefault("BRIDGE_WINDOW_SIZE", "1280,900"),

		RelayHost: getEnvOrDefault("BRIDGE_RELAY_HOST", "127.0.0.1"),

		OperationTimeoutMS:  getEnvIntOrDefault("BRIDGE_OPERATION_TIMEOUT_MS", 5000),
		NavigationTimeoutMS: getEnvIntOrDefault("BRIDGE_NAVIGATION_TIMEOUT_MS", 60000),
		RootSelectorWaitMS:  getEnvIntOrDefault("BRIDGE_ROOT_SELECTOR_WAIT_MS", 10000),
		SettleDelayMS:       getEnvIntOrDefault("BRIDGE_SETTLE_DELAY_MS", 500),

		LogLevel: strings.ToLower(getEnvOrDefault("BRIDGE_LOG_LEVEL", "info")),
		LogFile:  getEnvOrDefault("BRIDGE_LOG_FILE", "logs/bridge.log"),
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultVal
}
