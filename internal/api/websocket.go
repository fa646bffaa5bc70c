package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/lockgate/internal/coordinator"
	"github.com/nerrad567/lockgate/internal/infrastructure/logging"
	"github.com/nerrad567/lockgate/internal/lock"
)

// Event channels a client can subscribe to.
const (
	ChannelLockState     = "lock.state_changed"
	ChannelGatewayHealth = "gateway.health_changed"
)

var knownChannels = map[string]bool{
	ChannelLockState:     true,
	ChannelGatewayHealth: true,
}

// Client to server message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
)

// Server to client message types.
const (
	WSTypeAck   = "ack"
	WSTypePong  = "pong"
	WSTypeEvent = "event"
	WSTypeError = "error"
)

// WSRequest is a message sent by a client.
type WSRequest struct {
	Type     string   `json:"type"`
	ID       string   `json:"id,omitempty"`
	Channels []string `json:"channels,omitempty"`
}

// WSMessage is a message sent to a client. ID echoes the request it answers.
type WSMessage struct {
	Type      string    `json:"type"`
	ID        string    `json:"id,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// Hub tracks WebSocket clients and fans coordinator events out to them.
// It implements coordinator.Listener.
//
// A client whose send buffer is full is disconnected rather than silently
// skipped; it reconnects and resubscribes, which replays current state.
type Hub struct {
	logger *logging.Logger

	// replay returns the current state for a channel, sent to a client
	// right after it subscribes. Nil disables replay.
	replay func(channel string) []any

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
	closed  bool
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client. It reports false once the hub has shut down.
func (h *Hub) Register(c *WSClient) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("websocket client connected", "subject", c.subject, "clients", n)
	return true
}

// Unregister removes a client and closes its send buffer. Only the call
// that removes the client closes the buffer.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		close(c.send)
		h.logger.Debug("websocket client disconnected", "subject", c.subject, "clients", n)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends payload as an event on channel to every subscriber.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := encodeEvent(channel, payload)
	if err != nil {
		h.logger.Error("failed to encode websocket event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		if c.subscribed(channel) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(data) {
			h.logger.Warn("disconnecting slow websocket client", "subject", c.subject, "channel", channel)
			h.drop(c)
		}
	}
}

// LockStateChanged broadcasts a lock snapshot.
func (h *Hub) LockStateChanged(snap lock.Snapshot) {
	h.Broadcast(ChannelLockState, snap)
}

// GatewayHealthChanged broadcasts a gateway health transition.
func (h *Hub) GatewayHealthChanged(status coordinator.HealthStatus) {
	h.Broadcast(ChannelGatewayHealth, status)
}

// replayTo sends the current state of channel to one client.
func (h *Hub) replayTo(c *WSClient, channel string) {
	if h.replay == nil {
		return
	}
	for _, payload := range h.replay(channel) {
		data, err := encodeEvent(channel, payload)
		if err != nil {
			continue
		}
		if !c.enqueue(data) {
			h.drop(c)
			return
		}
	}
}

func (h *Hub) drop(c *WSClient) {
	h.Unregister(c)
	if c.conn != nil {
		c.conn.Close()
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.closed = true
	h.mu.Unlock()

	for c := range clients {
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

func encodeEvent(channel string, payload any) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		Channel:   channel,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// The single-use ticket already proves the caller holds a token.
		return true
	},
}

// handleWebSocket upgrades the connection. Authentication is via a ticket
// query parameter obtained from POST /auth/ws-ticket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	entry, ok := s.tickets.redeem(ticket)
	if !ok {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "request_id", requestID(r))
		return
	}

	c := newWSClient(s.hub, conn, entry.subject)
	if !s.hub.Register(c) {
		conn.Close()
		return
	}
	go c.writeLoop(s.wsCfg)
	go c.readLoop(s.wsCfg)
}

// replayState returns the current state for a channel: every lock snapshot,
// or the gateway health.
func (s *Server) replayState(channel string) []any {
	switch channel {
	case ChannelLockState:
		devices := s.ctrl.Devices()
		out := make([]any, 0, len(devices))
		for _, d := range devices {
			out = append(out, d.Snapshot())
		}
		return out
	case ChannelGatewayHealth:
		return []any{s.ctrl.Health()}
	}
	return nil
}
