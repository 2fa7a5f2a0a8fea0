package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetConfigPath(t *testing.T) {
	originalEnv := os.Getenv("TALLYCORE_CONFIG")
	defer os.Setenv("TALLYCORE_CONFIG", originalEnv)

	os.Setenv("TALLYCORE_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want default", got)
	}

	os.Setenv("TALLYCORE_CONFIG", "/tmp/custom.yaml")
	if got := getConfigPath(); got != "/tmp/custom.yaml" {
		t.Errorf("getConfigPath() = %q, want /tmp/custom.yaml", got)
	}
}

// TestRun_InvalidConfig verifies run fails with an invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	originalEnv := os.Getenv("TALLYCORE_CONFIG")
	defer os.Setenv("TALLYCORE_CONFIG", originalEnv)

	os.Setenv("TALLYCORE_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_StartsAndStops brings the whole stack up with every optional
// integration disabled, then shuts it down via context cancel.
func TestRun_StartsAndStops(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  host: "127.0.0.1"
  port: 39473
  timeouts:
    read: 5
    write: 5
    idle: 5

database:
  path: "` + filepath.Join(tmpDir, "tally.db") + `"
  wal_mode: true
  busy_timeout: 5

obs:
  enabled: false

discovery:
  enabled: false

mqtt:
  enabled: false

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o600); err != nil {
		t.Fatalf("writing test config: %v", err)
	}

	originalEnv := os.Getenv("TALLYCORE_CONFIG")
	defer os.Setenv("TALLYCORE_CONFIG", originalEnv)
	os.Setenv("TALLYCORE_CONFIG", configPath)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	// Give the stack a moment to come up, then signal shutdown.
	time.Sleep(500 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() returned error on clean shutdown: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run() did not return after context cancel")
	}
}
