package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stagelink/tally-core/internal/device"
	"github.com/stagelink/tally-core/internal/infrastructure/config"
	"github.com/stagelink/tally-core/internal/infrastructure/influxdb"
)

// fakeInflux stands in for an InfluxDB v2 server: /ping answers 204 and
// write bodies are captured as line protocol for inspection.
type fakeInflux struct {
	server *httptest.Server

	mu     sync.Mutex
	writes []string
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/ping":
			w.WriteHeader(http.StatusNoContent)
		case strings.HasSuffix(r.URL.Path, "/write"):
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			f.writes = append(f.writes, string(body))
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeInflux) body() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.writes, "\n")
}

func (f *fakeInflux) config() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           f.server.URL,
		Token:         "test-token",
		Org:           "stagelink",
		Bucket:        "telemetry",
		BatchSize:     1, // flush every point so tests see writes immediately
		FlushInterval: 1,
	}
}

func connectTest(t *testing.T, f *fakeInflux) *influxdb.Client {
	t.Helper()
	client, err := influxdb.Connect(f.config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestConnect_Disabled(t *testing.T) {
	_, err := influxdb.Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := config.InfluxDBConfig{
		Enabled: true,
		URL:     "http://127.0.0.1:1", // nothing listens here
		Token:   "t",
	}
	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_Succeeds(t *testing.T) {
	f := newFakeInflux(t)
	client := connectTest(t, f)

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestWriteHeartbeat(t *testing.T) {
	f := newFakeInflux(t)
	client := connectTest(t, f)

	client.WriteHeartbeat("cam-1", 90_000, -61, 42)
	client.Flush()

	body := f.body()
	if !strings.Contains(body, "device_heartbeat") {
		t.Fatalf("write body missing measurement: %q", body)
	}
	if !strings.Contains(body, "device_id=cam-1") {
		t.Errorf("write body missing device tag: %q", body)
	}
	if !strings.Contains(body, "uptime_seconds=90") {
		t.Errorf("write body missing uptime field: %q", body)
	}
	if !strings.Contains(body, "rssi_dbm=-61i") {
		t.Errorf("write body missing rssi field: %q", body)
	}
}

func TestWriteTallyChange(t *testing.T) {
	f := newFakeInflux(t)
	client := connectTest(t, f)

	client.WriteTallyChange("cam-1", device.TallyLive, "Camera 1")
	client.WriteTallyChange("cam-2", device.TallyIdle, "")
	client.Flush()

	body := f.body()
	if !strings.Contains(body, "state=live") {
		t.Errorf("write body missing live state tag: %q", body)
	}
	if !strings.Contains(body, "live=1i") {
		t.Errorf("live transition should carry live=1: %q", body)
	}
	if !strings.Contains(body, "state=idle") {
		t.Errorf("write body missing idle state tag: %q", body)
	}
	if !strings.Contains(body, "live=0i") {
		t.Errorf("idle transition should carry live=0: %q", body)
	}
}

func TestWriteOBSStatus(t *testing.T) {
	f := newFakeInflux(t)
	client := connectTest(t, f)

	client.WriteOBSStatus(true, false)
	client.Flush()

	body := f.body()
	if !strings.Contains(body, "obs_status") {
		t.Fatalf("write body missing measurement: %q", body)
	}
	if !strings.Contains(body, "connected=1i") || !strings.Contains(body, "streaming=0i") {
		t.Errorf("write body missing status fields: %q", body)
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var client *influxdb.Client

	if client.IsConnected() {
		t.Error("nil client reports connected")
	}
	// None of these may panic.
	client.WriteHeartbeat("cam-1", 1000, -50, 1)
	client.WriteTallyChange("cam-1", device.TallyLive, "Camera 1")
	client.WriteOBSStatus(true, true)
	client.Flush()
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}

func TestWritesAfterCloseAreDropped(t *testing.T) {
	f := newFakeInflux(t)
	client := connectTest(t, f)

	client.Close()
	before := f.body()
	client.WriteHeartbeat("cam-1", 1000, -50, 1)
	client.Flush()

	if got := f.body(); got != before {
		t.Errorf("write after Close() reached the server: %q", got)
	}
}
