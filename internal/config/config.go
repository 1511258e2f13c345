// Package config loads client configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds everything the chat client needs to reach the backend.
type Config struct {
	APIBaseURL string
	WSBaseURL  string

	// PollInterval is how often the unread-count snapshot is fetched.
	PollInterval time.Duration

	// ReconnectMax caps automatic reconnect attempts after an abnormal
	// socket close. BackoffBase is the first retry delay; each further
	// attempt doubles it.
	ReconnectMax int
	BackoffBase  time.Duration

	// ConnectDelay is applied before the first socket dial of a room.
	// The backend needs a moment to propagate a freshly issued token,
	// so we wait it out rather than eat a guaranteed auth failure.
	ConnectDelay time.Duration

	// SendLimit / SendWindow rate-limit the composer per room.
	SendLimit  int
	SendWindow time.Duration
}

// Load reads configuration from the environment with sane defaults.
func Load() Config {
	pollInterval, _ := time.ParseDuration(envOrDefault("UNREAD_POLL_INTERVAL", "5s"))
	backoffBase, _ := time.ParseDuration(envOrDefault("RECONNECT_BACKOFF_BASE", "1s"))
	connectDelay, _ := time.ParseDuration(envOrDefault("CONNECT_DELAY", "300ms"))
	sendWindow, _ := time.ParseDuration(envOrDefault("SEND_WINDOW", "1m"))
	reconnectMax, _ := strconv.Atoi(envOrDefault("RECONNECT_MAX", "3"))
	sendLimit, _ := strconv.Atoi(envOrDefault("SEND_LIMIT", "30"))

	return Config{
		APIBaseURL:   envOrDefault("API_BASE_URL", "http://localhost:8000/api"),
		WSBaseURL:    envOrDefault("WS_BASE_URL", "ws://localhost:8000"),
		PollInterval: pollInterval,
		ReconnectMax: reconnectMax,
		BackoffBase:  backoffBase,
		ConnectDelay: connectDelay,
		SendLimit:    sendLimit,
		SendWindow:   sendWindow,
	}
}

func envOrDefault(key string, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
