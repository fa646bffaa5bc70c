package api

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/lockgate/internal/infrastructure/config"
)

const (
	// wsSendBuffer is the per-client outbound queue length.
	wsSendBuffer = 256

	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 10 * time.Second
)

// wsTimings returns the ping interval and pong timeout, with defaults for
// unset values.
func wsTimings(cfg config.WebSocketConfig) (ping, pong time.Duration) {
	ping = time.Duration(cfg.PingInterval) * time.Second
	if ping <= 0 {
		ping = defaultPingInterval
	}
	pong = time.Duration(cfg.PongTimeout) * time.Second
	if pong <= 0 {
		pong = defaultPongTimeout
	}
	return ping, pong
}

// WSClient is one WebSocket connection.
type WSClient struct {
	hub     *Hub
	conn    *websocket.Conn
	subject string
	send    chan []byte

	mu       sync.RWMutex
	channels map[string]bool
}

func newWSClient(hub *Hub, conn *websocket.Conn, subject string) *WSClient {
	return &WSClient{
		hub:      hub,
		conn:     conn,
		subject:  subject,
		send:     make(chan []byte, wsSendBuffer),
		channels: make(map[string]bool),
	}
}

// readLoop handles client requests until the connection fails.
func (c *WSClient) readLoop(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	ping, pong := wsTimings(cfg)
	idle := ping + pong
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(idle)) }

	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	extend() //nolint:errcheck // a failed deadline surfaces on the next read
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "subject", c.subject, "error", err)
			}
			return
		}
		// Browsers may not answer protocol pings; any request counts as alive.
		extend() //nolint:errcheck // see above
		c.handle(data)
	}
}

// writeLoop drains the send buffer and keeps the connection alive with pings.
func (c *WSClient) writeLoop(cfg config.WebSocketConfig) {
	interval, writeWait := wsTimings(cfg)
	ping := time.NewTicker(interval)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write error follows
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write error follows
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handle(data []byte) {
	var req WSRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply(WSTypeError, "", map[string]string{"message": "invalid JSON message"})
		return
	}

	switch req.Type {
	case WSTypeSubscribe:
		if err := validateChannels(req.Channels); err != nil {
			c.reply(WSTypeError, req.ID, map[string]string{"message": err.Error()})
			return
		}
		c.setChannels(req.Channels, true)
		c.reply(WSTypeAck, req.ID, map[string]any{"channels": c.subscriptions()})
		for _, ch := range req.Channels {
			c.hub.replayTo(c, ch)
		}
	case WSTypeUnsubscribe:
		c.setChannels(req.Channels, false)
		c.reply(WSTypeAck, req.ID, map[string]any{"channels": c.subscriptions()})
	case WSTypePing:
		c.reply(WSTypePong, req.ID, nil)
	default:
		c.reply(WSTypeError, req.ID, map[string]string{"message": "unknown message type: " + req.Type})
	}
}

func validateChannels(channels []string) error {
	if len(channels) == 0 {
		return fmt.Errorf("channels are required")
	}
	for _, ch := range channels {
		if !knownChannels[ch] {
			return fmt.Errorf("unknown channel: %s", ch)
		}
	}
	return nil
}

func (c *WSClient) setChannels(channels []string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		if on {
			c.channels[ch] = true
		} else {
			delete(c.channels, ch)
		}
	}
}

func (c *WSClient) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channels[channel]
}

// subscriptions returns the subscribed channels, sorted.
func (c *WSClient) subscriptions() []string {
	c.mu.RLock()
	out := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		out = append(out, ch)
	}
	c.mu.RUnlock()
	slices.Sort(out)
	return out
}

func (c *WSClient) reply(msgType, id string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.enqueue(data)
}

// enqueue queues data without blocking. It reports false when the buffer is
// full; a buffer closed by shutdown counts as delivered.
func (c *WSClient) enqueue(data []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = true
		}
	}()

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}
