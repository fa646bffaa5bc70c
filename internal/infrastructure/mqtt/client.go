package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/lockgate/internal/infrastructure/config"
)

// Logger is the logging surface the client needs. *logging.Logger and
// *slog.Logger both satisfy it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Client is a broker connection with lockgate's topic tree, a retained
// presence on the system status topic, and subscriptions that survive
// reconnects. It is safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics

	connected atomic.Bool

	subMu         sync.RWMutex
	subscriptions map[string]subscription

	hookMu       sync.RWMutex
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Connect dials the broker and waits up to ten seconds for the first
// session. Once connected, and after every reconnect, it publishes an
// online presence and renews subscriptions.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:           cfg,
		topics:        Topics{Prefix: cfg.TopicPrefix},
		subscriptions: make(map[string]subscription),
	}

	opts := newOptions(cfg, c.topics).
		SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() }).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })
	c.client = pahomqtt.NewClient(opts)

	tok := c.client.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The connect handler runs on its own goroutine and may not have fired.
	c.connected.Store(true)
	return c, nil
}

// Topics returns the topic builder for the configured prefix.
func (c *Client) Topics() Topics {
	return c.topics
}

// QoS returns the configured default QoS.
func (c *Client) QoS() byte {
	return byte(c.cfg.QoS) // #nosec G115 -- config validates 0..2
}

// Close publishes an offline presence and disconnects. It is safe on a nil
// or never-connected Client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	if c.IsConnected() {
		c.client.Publish(c.topics.SystemStatus(), c.QoS(), true,
			presencePayload(presenceOffline, c.cfg.Broker.ClientID, "shutdown")).WaitTimeout(opTimeout)
	}
	c.connected.Store(false)
	c.client.Disconnect(quiesceMillis)
	return nil
}

// HealthCheck returns ErrNotConnected while the broker session is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether a broker session is up.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.client.IsConnected()
}

// SetOnConnect sets a callback run after the first connect and every
// reconnect, once subscriptions have been renewed.
func (c *Client) SetOnConnect(fn func()) {
	c.hookMu.Lock()
	c.onConnect = fn
	c.hookMu.Unlock()
}

// SetOnDisconnect sets a callback run when the session is lost.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.hookMu.Lock()
	c.onDisconnect = fn
	c.hookMu.Unlock()
}

// SetLogger sets the logger for connection and handler errors.
func (c *Client) SetLogger(logger Logger) {
	c.hookMu.Lock()
	c.logger = logger
	c.hookMu.Unlock()
}

func (c *Client) handleConnect() {
	c.connected.Store(true)
	c.resubscribe()
	c.client.Publish(c.topics.SystemStatus(), c.QoS(), true,
		presencePayload(presenceOnline, c.cfg.Broker.ClientID, ""))

	c.hookMu.RLock()
	fn := c.onConnect
	c.hookMu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.connected.Store(false)
	c.logWarn("MQTT connection lost", "error", err)

	c.hookMu.RLock()
	fn := c.onDisconnect
	c.hookMu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

func (c *Client) logWarn(msg string, args ...any) {
	c.hookMu.RLock()
	l := c.logger
	c.hookMu.RUnlock()
	if l != nil {
		l.Warn(msg, args...)
	}
}

func (c *Client) logError(msg string, args ...any) {
	c.hookMu.RLock()
	l := c.logger
	c.hookMu.RUnlock()
	if l != nil {
		l.Error(msg, args...)
	}
}
