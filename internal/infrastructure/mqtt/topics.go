package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when the configured prefix is empty.
const DefaultTopicPrefix = "lockgate"

// Topics builds lockgate MQTT topics under a prefix.
//
//	{prefix}/system/status                 retained online/offline (LWT)
//	{prefix}/gateway/{gateway_id}/health   retained gateway health
//	{prefix}/lock/{lock_id}/state          retained lock snapshot
//	{prefix}/lock/{lock_id}/command        verb commands (subscribed)
//	{prefix}/lock/{lock_id}/result         command outcomes
//	{prefix}/refresh                       on-demand refresh (subscribed)
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// SystemStatus returns the service status topic.
func (t Topics) SystemStatus() string {
	return t.prefix() + "/system/status"
}

// GatewayHealth returns the health topic of one gateway.
func (t Topics) GatewayHealth(gatewayID string) string {
	return fmt.Sprintf("%s/gateway/%s/health", t.prefix(), gatewayID)
}

// LockState returns the state topic of one lock.
func (t Topics) LockState(lockID string) string {
	return fmt.Sprintf("%s/lock/%s/state", t.prefix(), lockID)
}

// LockCommand returns the command topic of one lock.
func (t Topics) LockCommand(lockID string) string {
	return fmt.Sprintf("%s/lock/%s/command", t.prefix(), lockID)
}

// LockResult returns the command result topic of one lock.
func (t Topics) LockResult(lockID string) string {
	return fmt.Sprintf("%s/lock/%s/result", t.prefix(), lockID)
}

// Refresh returns the on-demand refresh topic.
func (t Topics) Refresh() string {
	return t.prefix() + "/refresh"
}

// AllLockCommands matches every lock command topic.
func (t Topics) AllLockCommands() string {
	return t.prefix() + "/lock/+/command"
}

// LockIDFromCommand extracts the lock id from a command topic.
// ok is false for topics outside {prefix}/lock/{id}/command.
func (t Topics) LockIDFromCommand(topic string) (id string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.prefix()+"/lock/")
	if !found {
		return "", false
	}
	id, found = strings.CutSuffix(rest, "/command")
	if !found || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
