// Package api implements the HTTP REST API and WebSocket server for lockgate.
//
// It provides:
//   - REST endpoints to list locks, run verbs and trigger refresh cycles
//   - a WebSocket hub broadcasting lock state and gateway health changes
//   - JWT bearer authentication with ticket-based WebSocket auth
//   - a middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Authentication
//
// Every endpoint except /api/v1/health requires an HS256 bearer token
// signed with security.jwt.secret. lockgate keeps no user store; tokens are
// minted with `lockgate -issue-token <subject>` (see IssueToken).
// WebSocket connections use single-use tickets from POST /auth/ws-ticket so
// tokens never appear in URLs.
//
// # Events
//
// The Hub implements coordinator.Listener. Clients subscribe to
// "lock.state_changed" and "gateway.health_changed".
package api
