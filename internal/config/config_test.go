package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BridgeURL != "ws://127.0.0.1:18900" {
		t.Fatalf("BridgeURL = %q, want default loopback", cfg.BridgeURL)
	}
	if cfg.TasksPageSize != 20 {
		t.Fatalf("TasksPageSize = %d, want 20", cfg.TasksPageSize)
	}
	if cfg.MetricsNamespace != "starbridge" {
		t.Fatalf("MetricsNamespace = %q, want starbridge", cfg.MetricsNamespace)
	}
	if cfg.HandshakeTimeout != 10*time.Second {
		t.Fatalf("HandshakeTimeout = %v, want 10s", cfg.HandshakeTimeout)
	}
}

func TestLoadExplicitValues(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("BRIDGE_URL", "wss://bridge.internal:443")
	t.Setenv("BRIDGE_TOKEN", " secret \n")
	t.Setenv("TASKS_PAGE_SIZE", "50")
	t.Setenv("BRIDGE_WRITE_TIMEOUT", "2s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BridgeURL != "wss://bridge.internal:443" {
		t.Fatalf("BridgeURL = %q, want explicit value", cfg.BridgeURL)
	}
	if cfg.BridgeToken != "secret" {
		t.Fatalf("BridgeToken = %q, want trimmed token", cfg.BridgeToken)
	}
	if cfg.TasksPageSize != 50 {
		t.Fatalf("TasksPageSize = %d, want 50", cfg.TasksPageSize)
	}
	if cfg.WriteTimeout != 2*time.Second {
		t.Fatalf("WriteTimeout = %v, want 2s", cfg.WriteTimeout)
	}
}

func TestLoadRejectsNonPositivePageSize(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("TASKS_PAGE_SIZE", "0")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() accepted zero page size")
	}
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_SHUTDOWN_TIMEOUT", "fifteen")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() accepted malformed duration")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"BRIDGE_URL",
		"BRIDGE_TOKEN",
		"APP_BIND_ADDR",
		"APP_METRICS_NAMESPACE",
		"TASKS_PAGE_SIZE",
		"APP_SHUTDOWN_TIMEOUT",
		"BRIDGE_HANDSHAKE_TIMEOUT",
		"BRIDGE_WRITE_TIMEOUT",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
