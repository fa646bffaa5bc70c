// Package mqtt connects lockgate to an MQTT broker.
//
// The client reconnects on its own and renews its subscriptions each time.
// A retained presence on {prefix}/system/status reads "online" while the
// session is up; the broker's Last Will flips it to "offline" if lockgate
// dies, and Close does the same on shutdown.
//
// # Architecture
//
// The bridge package publishes lock state and gateway health here and
// turns messages on the command topics into coordinator verbs.
//
//	Coordinator → bridge → MQTT broker → home automation
//	home automation → MQTT broker → bridge → Coordinator.Execute
//
// # Security Considerations
//
//   - Enable TLS (mqtt.broker.tls) when the broker is not on localhost
//   - Restrict the command topics with broker ACLs; a command opens a door
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Publish(topics.LockState("front"), payload, client.QoS(), true)
package mqtt
