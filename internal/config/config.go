package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the bridge client.
type Config struct {
	BridgeURL   string
	BridgeToken string

	BindAddr         string
	MetricsNamespace string

	TasksPageSize int

	ShutdownTimeout  time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BridgeURL:        envOrDefault("BRIDGE_URL", "ws://127.0.0.1:18900"),
		BridgeToken:      stringsTrimSpace("BRIDGE_TOKEN"),
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "starbridge"),
		TasksPageSize:    20,
		ShutdownTimeout:  15 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
	var err error
	cfg.TasksPageSize, err = intFromEnv("TASKS_PAGE_SIZE", cfg.TasksPageSize)
	if err != nil {
		return Config{}, err
	}
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.HandshakeTimeout, err = durationFromEnv("BRIDGE_HANDSHAKE_TIMEOUT", cfg.HandshakeTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.WriteTimeout, err = durationFromEnv("BRIDGE_WRITE_TIMEOUT", cfg.WriteTimeout)
	if err != nil {
		return Config{}, err
	}

	if cfg.TasksPageSize <= 0 {
		return Config{}, fmt.Errorf("TASKS_PAGE_SIZE must be positive")
	}
	if cfg.HandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("BRIDGE_HANDSHAKE_TIMEOUT must be positive")
	}
	if cfg.WriteTimeout <= 0 {
		return Config{}, fmt.Errorf("BRIDGE_WRITE_TIMEOUT must be positive")
	}
	if strings.TrimSpace(cfg.BridgeURL) == "" {
		return Config{}, fmt.Errorf("BRIDGE_URL must not be empty")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}
