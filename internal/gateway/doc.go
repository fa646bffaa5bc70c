// Package gateway is a client for the local HTTP API of a smart-lock gateway.
//
// The gateway relays commands to battery-powered locks over radio. It is slow
// and fragile: it drops requests that arrive too close together, rejects
// signed commands whose timestamp has drifted, and sometimes reports busy or
// transient conditions that clear on their own. The package layers three
// concerns to cope with that:
//
//   - RateLimiter spaces requests (5s before heavy calls, 1s before light ones)
//   - Transport retries network failures with exponential backoff
//   - Client re-signs and resends when the gateway rejects a timestamp (code 33)
//
// Locker commands are authenticated with an HMAC-SHA256 of the current unix
// time keyed by the lock's share code (see Sign).
//
// Errors are either *TransportError (the gateway could not be reached) or
// *APIError (the gateway answered "ko" with a numeric code).
package gateway

// Logger is the structured logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
