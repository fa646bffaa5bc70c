package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

// stepClock advances one second on every reading.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock(start time.Time) *stepClock {
	return &stepClock{t: start}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

// recordedRequest is one request seen by fakeGateway.
type recordedRequest struct {
	Method string
	Path   string
	Form   url.Values
	At     time.Time
}

// fakeGateway serves scripted JSON responses per path. When a path's script
// runs out, its last response repeats. Unscripted paths answer {"status":"ok"}.
type fakeGateway struct {
	mu       sync.Mutex
	scripts  map[string][]any
	requests []recordedRequest
	server   *httptest.Server
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	g := &fakeGateway{scripts: make(map[string][]any)}
	g.server = httptest.NewServer(http.HandlerFunc(g.serve))
	t.Cleanup(g.server.Close)
	return g
}

// script queues responses for path. A string value is written raw.
func (g *fakeGateway) script(path string, responses ...any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scripts[path] = append(g.scripts[path], responses...)
}

func (g *fakeGateway) serve(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	path := strings.TrimPrefix(r.URL.Path, "/")

	g.mu.Lock()
	g.requests = append(g.requests, recordedRequest{
		Method: r.Method,
		Path:   path,
		Form:   r.PostForm,
		At:     time.Now(),
	})
	var resp any = map[string]any{"status": "ok"}
	if queue := g.scripts[path]; len(queue) > 0 {
		resp = queue[0]
		if len(queue) > 1 {
			g.scripts[path] = queue[1:]
		}
	}
	g.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if raw, ok := resp.(string); ok {
		_, _ = w.Write([]byte(raw))
		return
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (g *fakeGateway) host() string {
	return strings.TrimPrefix(g.server.URL, "http://")
}

func (g *fakeGateway) seen() []recordedRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]recordedRequest, len(g.requests))
	copy(out, g.requests)
	return out
}

func (g *fakeGateway) count(path string) int {
	n := 0
	for _, r := range g.seen() {
		if r.Path == path {
			n++
		}
	}
	return n
}

func ko(code int) map[string]any {
	return map[string]any{"status": "ko", "code": code, "message": "error"}
}

// fastConfig returns a client config with negligible delays.
func fastConfig(host string) Config {
	return Config{
		ID:                 "gw-test",
		Host:               host,
		HeavyDelay:         time.Nanosecond,
		LightDelay:         time.Nanosecond,
		TransportBackoff:   time.Millisecond,
		StaleTimestampWait: time.Millisecond,
		Now:                newStepClock(time.Unix(1700000000, 0)).Now,
	}
}
