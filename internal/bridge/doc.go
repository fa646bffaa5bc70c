// Package bridge connects the lock coordinator to MQTT.
//
// Outbound, retained:
//
//	{prefix}/lock/{id}/state          StateMessage on every state change
//	{prefix}/gateway/{id}/health      coordinator.HealthStatus on transitions
//
// Inbound:
//
//	{prefix}/lock/{id}/command        "open" or {"id":"..","verb":"open"}
//	{prefix}/refresh                  request an on-demand refresh cycle
//
// Each command produces one ResultMessage on {prefix}/lock/{id}/result,
// correlated by the command id (a UUID is assigned when the sender gives
// none).
//
// The Bridge implements coordinator.Listener; register it with
// Coordinator.AddListener.
package bridge
