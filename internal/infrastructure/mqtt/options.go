package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/lockgate/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	opTimeout      = 5 * time.Second
	keepAlive      = 60 * time.Second
	quiesceMillis  = 1000

	fallbackRetryInterval = time.Second
	fallbackMaxReconnect  = time.Minute

	maxQoS = 2
)

// Presence states published on the system status topic.
const (
	presenceOnline  = "online"
	presenceOffline = "offline"
)

// presence is the retained payload of the system status topic.
type presence struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func presencePayload(status, clientID, reason string) []byte {
	data, _ := json.Marshal(presence{ //nolint:errcheck // plain struct
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return data
}

// newOptions maps cfg onto paho options. The broker is told to publish a
// retained offline presence on topics.SystemStatus() if the session dies
// without a clean Close.
func newOptions(cfg config.MQTTConfig, topics Topics) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(seconds(cfg.Reconnect.InitialDelay, fallbackRetryInterval)).
		SetMaxReconnectInterval(seconds(cfg.Reconnect.MaxDelay, fallbackMaxReconnect)).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive).
		SetWill(topics.SystemStatus(),
			string(presencePayload(presenceOffline, cfg.Broker.ClientID, "unexpected_disconnect")), 1, true)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return opts
}

func seconds(n int, fallback time.Duration) time.Duration {
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}
