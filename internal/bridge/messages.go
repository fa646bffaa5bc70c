package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/lockgate/internal/lock"
)

// CommandMessage is received on {prefix}/lock/{id}/command.
//
// The payload is either JSON ({"id":"...","verb":"open"}) or a bare verb
// ("open") for clients that cannot build JSON.
type CommandMessage struct {
	// ID correlates the command with its result. Generated when empty.
	ID string `json:"id,omitempty"`

	// Verb is open, close, calibrate or sync.
	Verb string `json:"verb"`

	// Source names the caller, for logs only.
	Source string `json:"source,omitempty"`
}

// ResultStatus is the outcome of a command.
type ResultStatus string

// Command result statuses.
const (
	ResultOK     ResultStatus = "ok"
	ResultFailed ResultStatus = "failed"
)

// Result error codes.
const (
	ErrCodeInvalidCommand = "INVALID_COMMAND"
	ErrCodeUnknownLock    = "UNKNOWN_LOCK"
	ErrCodeGateway        = "GATEWAY_ERROR"
	ErrCodeUnreachable    = "GATEWAY_UNREACHABLE"
	ErrCodeCancelled      = "CANCELLED"
)

// ResultMessage is published on {prefix}/lock/{id}/result after a command.
type ResultMessage struct {
	CommandID string       `json:"command_id"`
	LockID    string       `json:"lock_id"`
	Verb      string       `json:"verb,omitempty"`
	Status    ResultStatus `json:"status"`
	Error     *ResultError `json:"error,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// ResultError describes a failed command.
type ResultError struct {
	Code string `json:"code"`

	// GatewayCode is the gateway's numeric error code, when it sent one.
	GatewayCode int `json:"gateway_code,omitempty"`

	Message string `json:"message"`
}

// StateMessage is published retained on {prefix}/lock/{id}/state.
type StateMessage struct {
	lock.Snapshot
	Timestamp time.Time `json:"timestamp"`
}

// RefreshMessage is the optional payload on {prefix}/refresh.
type RefreshMessage struct {
	Source string `json:"source,omitempty"`
}

// parseCommand decodes a command payload in either form.
func parseCommand(payload []byte) (CommandMessage, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return CommandMessage{}, fmt.Errorf("%w: empty payload", ErrInvalidCommand)
	}

	var cmd CommandMessage
	if trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &cmd); err != nil {
			return CommandMessage{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		}
	} else {
		cmd.Verb = string(trimmed)
	}

	cmd.Verb = strings.ToLower(strings.TrimSpace(cmd.Verb))
	if cmd.Verb == "" {
		return CommandMessage{}, fmt.Errorf("%w: verb is required", ErrInvalidCommand)
	}
	return cmd, nil
}
