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
	"time"

	"github.com/nerrad567/lockgate/internal/infrastructure/config"
	"github.com/nerrad567/lockgate/internal/infrastructure/influxdb"
)

// fakeInflux answers /ping and records line protocol posted to /api/v2/write.
type fakeInflux struct {
	*httptest.Server

	mu          sync.Mutex
	lines       []string
	writeStatus int
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{writeStatus: http.StatusNoContent}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			status := f.writeStatus
			if status == http.StatusNoContent {
				for _, l := range strings.Split(strings.TrimSpace(string(body)), "\n") {
					if l != "" {
						f.lines = append(f.lines, l)
					}
				}
			}
			f.mu.Unlock()
			if status != http.StatusNoContent {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"code":"invalid","message":"bad line"}`))
				return
			}
			w.WriteHeader(status)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeInflux) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "lockgate-test-token",
		Org:           "home",
		Bucket:        "lockgate",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func connect(t *testing.T, url string) *influxdb.Client {
	t.Helper()
	client, err := influxdb.Connect(testConfig(url))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestConnect(t *testing.T) {
	srv := newFakeInflux(t)
	client := connect(t, srv.URL)

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false

	client, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
	if client != nil {
		t.Error("Connect() returned a client while disabled")
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if _, err := influxdb.Connect(testConfig(url)); !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	srv := newFakeInflux(t)
	cfg := testConfig(srv.URL)
	cfg.BatchSize = -5
	cfg.FlushInterval = 0

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false with default batch settings")
	}
}

func TestWriteCycle(t *testing.T) {
	srv := newFakeInflux(t)
	client := connect(t, srv.URL)

	client.WriteCycle(influxdb.CyclePoint{
		GatewayID: "gw1",
		CycleID:   "c-1",
		Probe:     "ok",
		Started:   time.Unix(1700000000, 0),
		Duration:  1500 * time.Millisecond,
		Refreshed: 2,
		Failed:    1,
	})
	client.Flush()

	lines := srv.written()
	if len(lines) != 1 {
		t.Fatalf("written lines = %v, want 1", lines)
	}
	line := lines[0]
	for _, want := range []string{
		"refresh_cycle,gateway_id=gw1,probe=ok ",
		`cycle_id="c-1"`,
		"duration_ms=1500i",
		"refreshed=2i",
		"failed=1i",
		" 1700000000000000000",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestWriteDeviceRefresh(t *testing.T) {
	srv := newFakeInflux(t)
	client := connect(t, srv.URL)

	client.WriteDeviceRefresh(influxdb.DevicePoint{
		GatewayID: "gw1",
		LockID:    "front",
		Outcome:   "refreshed",
		Attempts:  1,
	})
	client.WriteDeviceRefresh(influxdb.DevicePoint{
		GatewayID: "gw1",
		LockID:    "back",
		Outcome:   "sync_failed",
		Attempts:  3,
		Code:      38,
		Syncs:     1,
	})
	client.Flush()

	lines := srv.written()
	if len(lines) != 2 {
		t.Fatalf("written lines = %v, want 2", lines)
	}
	if !strings.HasPrefix(lines[0], "lock_refresh,gateway_id=gw1,lock_id=front,outcome=refreshed ") {
		t.Errorf("line[0] = %q", lines[0])
	}
	if strings.Contains(lines[0], "code=") || strings.Contains(lines[0], "syncs=") {
		t.Errorf("line[0] = %q should omit zero code and syncs", lines[0])
	}
	if !strings.Contains(lines[1], "code=38i") || !strings.Contains(lines[1], "syncs=1i") {
		t.Errorf("line[1] = %q", lines[1])
	}
}

func TestWriteLockState(t *testing.T) {
	srv := newFakeInflux(t)
	client := connect(t, srv.URL)

	client.WriteLockState("front", true, 80, time.Now())
	client.Flush()

	lines := srv.written()
	if len(lines) != 1 {
		t.Fatalf("written lines = %v, want 1", lines)
	}
	if !strings.Contains(lines[0], "lock_state,lock_id=front ") ||
		!strings.Contains(lines[0], "battery_level=80i") ||
		!strings.Contains(lines[0], "locked=true") {
		t.Errorf("line = %q", lines[0])
	}
}

func TestWritePoint(t *testing.T) {
	srv := newFakeInflux(t)
	client := connect(t, srv.URL)

	client.WritePoint("custom", map[string]string{"source": "test"}, map[string]interface{}{"value": 1.5})
	client.Flush()

	lines := srv.written()
	if len(lines) != 1 || !strings.HasPrefix(lines[0], "custom,source=test value=1.5 ") {
		t.Errorf("written lines = %v", lines)
	}
}

func TestWriteErrorCallback(t *testing.T) {
	srv := newFakeInflux(t)
	srv.mu.Lock()
	srv.writeStatus = http.StatusBadRequest
	srv.mu.Unlock()
	client := connect(t, srv.URL)

	got := make(chan error, 1)
	client.SetOnError(func(err error) {
		select {
		case got <- err:
		default:
		}
	})

	client.WriteLockState("front", false, 10, time.Now())
	client.Flush()

	select {
	case err := <-got:
		if err == nil {
			t.Error("callback received nil error")
		}
		if client.WriteErrors() == 0 {
			t.Error("WriteErrors() = 0 after a failed write")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("error callback not invoked")
	}
}

func TestClose(t *testing.T) {
	srv := newFakeInflux(t)
	client, err := influxdb.Connect(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	client.WriteLockState("front", true, 50, time.Now())
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if len(srv.written()) != 1 {
		t.Errorf("Close() did not flush pending points: %v", srv.written())
	}

	// Writes and flushes after Close are dropped.
	client.WriteLockState("front", false, 50, time.Now())
	client.Flush()
	if len(srv.written()) != 1 {
		t.Errorf("write after Close reached the server: %v", srv.written())
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var client *influxdb.Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}
