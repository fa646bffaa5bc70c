package coordinator

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/lockgate/internal/gateway"
	"github.com/nerrad567/lockgate/internal/lock"
)

// drop closes the connection without answering.
type drop struct{}

// delayed answers with body after d.
type delayed struct {
	d    time.Duration
	body map[string]any
}

// fakeGateway scripts responses by "path" or "path#identifier". The last
// queued response for a key repeats. Unscripted keys answer {"status":"ok"}.
type fakeGateway struct {
	mu      sync.Mutex
	down    bool
	scripts map[string][]any
	calls   []string
	srv     *httptest.Server
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	g := &fakeGateway{scripts: make(map[string][]any)}
	g.srv = httptest.NewServer(http.HandlerFunc(g.serve))
	t.Cleanup(g.srv.Close)
	return g
}

func (g *fakeGateway) script(key string, responses ...any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scripts[key] = append(g.scripts[key], responses...)
}

func (g *fakeGateway) setDown(down bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.down = down
}

func (g *fakeGateway) next(key string) (any, bool) {
	queue, ok := g.scripts[key]
	if !ok || len(queue) == 0 {
		return nil, false
	}
	if len(queue) > 1 {
		g.scripts[key] = queue[1:]
	}
	return queue[0], true
}

func (g *fakeGateway) serve(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	path := strings.TrimPrefix(r.URL.Path, "/")
	id := r.PostForm.Get("identifier")

	g.mu.Lock()
	down := g.down
	if !down {
		if id != "" {
			g.calls = append(g.calls, path+"#"+id)
		} else {
			g.calls = append(g.calls, path)
		}
	}
	resp, ok := g.next(path + "#" + id)
	if !ok {
		resp, ok = g.next(path)
	}
	g.mu.Unlock()

	if down {
		resp = drop{}
	}
	if !ok && !down {
		resp = map[string]any{"status": "ok"}
	}

	switch v := resp.(type) {
	case drop:
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				conn.Close()
			}
		}
		return
	case delayed:
		select {
		case <-time.After(v.d):
		case <-r.Context().Done():
			return
		}
		resp = v.body
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// callsTo returns the recorded calls whose key starts with prefix.
func (g *fakeGateway) callsTo(prefix string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, c := range g.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// waitCalls blocks until at least n calls start with prefix.
func (g *fakeGateway) waitCalls(t *testing.T, prefix string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(g.callsTo(prefix)) < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d %q calls, got %d", n, prefix, len(g.callsTo(prefix)))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (g *fakeGateway) allCalls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func ko(code int) map[string]any {
	return map[string]any{"status": "ko", "code": code, "message": fmt.Sprintf("error %d", code)}
}

func okStatus(state string, battery int) map[string]any {
	return map[string]any{"status": "ok", "state": state, "battery": battery}
}

// logEntry is one line captured by recordingLogger.
type logEntry struct {
	level string
	msg   string
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level, msg})
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.add("debug", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.add("info", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.add("warn", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.add("error", msg) }

func (l *recordingLogger) count(level, msgPrefix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level && strings.HasPrefix(e.msg, msgPrefix) {
			n++
		}
	}
	return n
}

// recordingListener captures notifications.
type recordingListener struct {
	mu     sync.Mutex
	locks  []lock.Snapshot
	health []HealthStatus
}

func (l *recordingListener) LockStateChanged(s lock.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locks = append(l.locks, s)
}

func (l *recordingListener) GatewayHealthChanged(s HealthStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.health = append(l.health, s)
}

// recordingSink captures cycle reports.
type recordingSink struct {
	mu      sync.Mutex
	reports []CycleReport
}

func (s *recordingSink) RecordCycle(r CycleReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
}

// fixture wires a fake gateway, registry and coordinator.
type fixture struct {
	gw       *fakeGateway
	registry *lock.Registry
	coord    *Coordinator
	logger   *recordingLogger
	listener *recordingListener
	sink     *recordingSink
}

func testConfig() Config {
	return Config{
		GatewayID:        "gw1",
		InterDeviceDelay: time.Millisecond,
		BusyWait:         time.Millisecond,
		SyncWait:         time.Millisecond,
	}
}

func newFixture(t *testing.T, cfg Config, lockIDs ...string) *fixture {
	t.Helper()
	gw := newFakeGateway(t)

	client, err := gateway.NewClient(gateway.Config{
		ID:                 "gw1",
		Host:               strings.TrimPrefix(gw.srv.URL, "http://"),
		HeavyDelay:         time.Nanosecond,
		LightDelay:         time.Nanosecond,
		TransportBackoff:   time.Millisecond,
		StaleTimestampWait: time.Millisecond,
		ProbeTimeout:       time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	reg := lock.NewRegistry()
	if err := reg.AddGateway(client); err != nil {
		t.Fatalf("AddGateway() error = %v", err)
	}
	for _, id := range lockIDs {
		if _, err := reg.AddDevice(lock.Record{
			ID:         id,
			Identifier: id,
			Name:       "Lock " + id,
			ShareCode:  "share-" + id,
			GatewayID:  "gw1",
		}); err != nil {
			t.Fatalf("AddDevice(%s) error = %v", id, err)
		}
	}

	f := &fixture{
		gw:       gw,
		registry: reg,
		logger:   &recordingLogger{},
		listener: &recordingListener{},
		sink:     &recordingSink{},
	}
	f.coord, err = New(Options{
		Config:   cfg,
		Registry: reg,
		Logger:   f.logger,
		Metrics:  f.sink,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(f.coord.Close)
	f.coord.AddListener(f.listener)
	return f
}
