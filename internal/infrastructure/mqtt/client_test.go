package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/lockgate/internal/infrastructure/config"
)

// testConfig returns an MQTT configuration for a local broker.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "lockgate-test",
		},
		QoS:         1,
		TopicPrefix: "lockgate-test",
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// offlineClient returns a client that was never connected.
func offlineClient(cfg config.MQTTConfig) *Client {
	return &Client{
		client:        pahomqtt.NewClient(newOptions(cfg, Topics{Prefix: cfg.TopicPrefix})),
		cfg:           cfg,
		topics:        Topics{Prefix: cfg.TopicPrefix},
		subscriptions: make(map[string]subscription),
	}
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) Error(msg string, args ...any) { l.add("error", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }

func (l *recordingLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level, msg, args})
}

func TestTopics(t *testing.T) {
	topics := Topics{Prefix: "home/lockgate/"}

	tests := []struct {
		got, want string
	}{
		{topics.SystemStatus(), "home/lockgate/system/status"},
		{topics.GatewayHealth("gw1"), "home/lockgate/gateway/gw1/health"},
		{topics.LockState("front"), "home/lockgate/lock/front/state"},
		{topics.LockCommand("front"), "home/lockgate/lock/front/command"},
		{topics.LockResult("front"), "home/lockgate/lock/front/result"},
		{topics.Refresh(), "home/lockgate/refresh"},
		{topics.AllLockCommands(), "home/lockgate/lock/+/command"},
		{Topics{}.LockState("x"), "lockgate/lock/x/state"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestTopics_LockIDFromCommand(t *testing.T) {
	topics := Topics{Prefix: "lockgate"}

	tests := []struct {
		topic  string
		wantID string
		wantOK bool
	}{
		{"lockgate/lock/front/command", "front", true},
		{"lockgate/lock/front/state", "", false},
		{"lockgate/lock//command", "", false},
		{"lockgate/lock/a/b/command", "", false},
		{"other/lock/front/command", "", false},
	}
	for _, tt := range tests {
		id, ok := topics.LockIDFromCommand(tt.topic)
		if id != tt.wantID || ok != tt.wantOK {
			t.Errorf("LockIDFromCommand(%q) = %q, %v; want %q, %v", tt.topic, id, ok, tt.wantID, tt.wantOK)
		}
	}
}

func TestNewOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "lockgate", Password: "pw"}

	opts := newOptions(cfg, Topics{Prefix: "lg"})
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "lockgate-test" || opts.Username != "lockgate" || opts.Password != "pw" {
		t.Errorf("identity = %q %q %q", opts.ClientID, opts.Username, opts.Password)
	}
	if !opts.AutoReconnect || !opts.CleanSession || opts.Order {
		t.Error("expected auto-reconnect, clean session and unordered delivery")
	}
	if opts.MaxReconnectInterval != 5*time.Second || opts.ConnectRetryInterval != time.Second {
		t.Errorf("reconnect intervals = %v / %v", opts.ConnectRetryInterval, opts.MaxReconnectInterval)
	}
	if opts.TLSConfig != nil && opts.TLSConfig.MinVersion != 0 {
		t.Error("TLS configured without broker.tls")
	}

	cfg.Broker.TLS = true
	cfg.Reconnect = config.MQTTReconnectConfig{}
	opts = newOptions(cfg, Topics{})
	if opts.Servers[0].Scheme != "ssl" || opts.TLSConfig.MinVersion != tls.VersionTLS12 {
		t.Errorf("TLS options = %v / %+v", opts.Servers[0], opts.TLSConfig)
	}
	if opts.MaxReconnectInterval != fallbackMaxReconnect || opts.ConnectRetryInterval != fallbackRetryInterval {
		t.Errorf("zero reconnect config gave %v / %v", opts.ConnectRetryInterval, opts.MaxReconnectInterval)
	}
}

func TestNewOptions_Will(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "lockgate-1"
	opts := newOptions(cfg, Topics{Prefix: "lg"})

	if !opts.WillEnabled || !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("will flags = %v %v %d", opts.WillEnabled, opts.WillRetained, opts.WillQos)
	}
	if opts.WillTopic != "lg/system/status" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}

	var p presence
	if err := json.Unmarshal(opts.WillPayload, &p); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if p.Status != presenceOffline || p.ClientID != "lockgate-1" || p.Reason != "unexpected_disconnect" || p.Timestamp == "" {
		t.Errorf("will payload = %+v", p)
	}
}

func TestPresencePayload_OmitsEmptyReason(t *testing.T) {
	data := presencePayload(presenceOnline, "c", "")
	if strings.Contains(string(data), "reason") {
		t.Errorf("payload %s should omit reason", data)
	}
}

func TestPublish_Validation(t *testing.T) {
	c := offlineClient(testConfig())

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", nil, 1, ErrInvalidTopic},
		{"bad qos", "t", nil, 3, ErrInvalidQoS},
		{"too large", "t", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "t", []byte("{}"), 1, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := offlineClient(testConfig())
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := c.Subscribe("t", 3, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad qos error = %v", err)
	}
	if err := c.Subscribe("t", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
	if err := c.Subscribe("t", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("offline error = %v", err)
	}
	if c.SubscriptionCount() != 0 || c.HasSubscription("t") {
		t.Error("failed subscribe must not be tracked")
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(\"\") error = %v", err)
	}
}

func TestHealthCheck_Offline(t *testing.T) {
	c := offlineClient(testConfig())

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v", err)
	}
}

func TestDispatch_RecoversAndLogs(t *testing.T) {
	c := offlineClient(testConfig())
	logger := &recordingLogger{}
	c.SetLogger(logger)

	c.dispatch(func(string, []byte) error { panic("boom") }, "lockgate/lock/a/command", nil)
	c.dispatch(func(string, []byte) error { return errors.New("bad verb") }, "lockgate/lock/a/command", nil)
	c.dispatch(func(string, []byte) error { return nil }, "lockgate/lock/a/command", nil)

	if len(logger.entries) != 2 {
		t.Fatalf("log entries = %+v, want 2", logger.entries)
	}
	if logger.entries[0].level != "error" || logger.entries[1].level != "warn" {
		t.Errorf("levels = %s, %s", logger.entries[0].level, logger.entries[1].level)
	}
}

func TestHandleDisconnect_Callback(t *testing.T) {
	c := offlineClient(testConfig())
	c.SetLogger(&recordingLogger{})

	got := make(chan error, 1)
	c.SetOnDisconnect(func(err error) { got <- err })

	c.connected.Store(true)
	c.handleDisconnect(errors.New("broker gone"))

	select {
	case err := <-got:
		if err == nil || err.Error() != "broker gone" {
			t.Errorf("callback error = %v", err)
		}
	default:
		t.Fatal("disconnect callback not invoked")
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after disconnect")
	}
}

func TestClose_Nil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
	if err := (&Client{}).Close(); err != nil {
		t.Errorf("Close() on zero client error = %v", err)
	}
}

func TestQoS(t *testing.T) {
	cfg := testConfig()
	cfg.QoS = 2
	if q := offlineClient(cfg).QoS(); q != 2 {
		t.Errorf("QoS() = %d, want 2", q)
	}
}
