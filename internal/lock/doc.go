// Package lock holds the lock directory and the live device handles that
// the coordinator refreshes.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                          Registry                            │
//	│                                                              │
//	│  gateways: id → *gateway.Client     devices: []*Device       │
//	│                                                              │
//	│  Device ──(gateway id)──▶ Registry.Gateway(id) ──▶ Client    │
//	└──────────────────────────────────────────────────────────────┘
//	            ▲
//	            │ Load
//	┌───────────┴──────────┐
//	│  SQLiteRepository    │  (locks table: directory records)
//	└──────────────────────┘
//
// A Device stores the id of its gateway, not a pointer to it; the Registry
// resolves ids on every command. Devices are created once and only mutated
// afterwards, so anything holding a *Device observes fresh state.
//
// # Key Types
//
//   - Record: one directory entry (identifier, share code, gateway)
//   - Device: live handle with last-known lock and battery state
//   - Snapshot: immutable copy of a device's state for readers
//   - Registry: id-based lookup of gateways and devices
//
// # Thread Safety
//
// Registry and Device are safe for concurrent use. Device state is guarded
// by a per-device RWMutex; callers read it through accessors or Snapshot.
package lock
