package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"syscall"
)

// Domain errors for the gateway package.
var (
	// ErrInvalidAddress is returned when a gateway address cannot be parsed
	// as an IP address or hostname with an optional port.
	ErrInvalidAddress = errors.New("gateway: invalid address")

	// ErrInvalidResponse is returned when the gateway answers with a body
	// that is not a JSON object.
	ErrInvalidResponse = errors.New("gateway: invalid response")

	// ErrUnknownAction is returned when an action name is not recognised.
	ErrUnknownAction = errors.New("gateway: unknown action")

	// ErrMissingIdentifier is returned when a locker action is performed
	// without a lock identifier.
	ErrMissingIdentifier = errors.New("gateway: locker action requires an identifier")
)

// Gateway-reported error codes carried in "ko" responses.
const (
	// CodeStaleTimestamp means the signed timestamp fell outside the
	// gateway's tolerance window. Resending with a fresh timestamp fixes it.
	CodeStaleTimestamp = 33

	// CodeTransient is an unspecified transient failure, usually a lock that
	// is out of radio range.
	CodeTransient = 34

	// CodeClockInvalid means the gateway clock is not set and a synchronize
	// call is needed before lock commands succeed.
	CodeClockInvalid = 38

	// CodeActionInProgress means a previous lock movement has not finished.
	CodeActionInProgress = 400

	// CodeBusy means the gateway is serving another request.
	CodeBusy = 500
)

// ErrorKind classifies a transport failure.
type ErrorKind string

// Transport failure kinds.
const (
	KindTimeout ErrorKind = "timeout"
	KindRefused ErrorKind = "refused"
	KindReset   ErrorKind = "reset"
	KindDNS     ErrorKind = "dns"
	KindOther   ErrorKind = "other"
)

// TransportError is a network-level failure talking to the gateway.
type TransportError struct {
	Kind   ErrorKind
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gateway: %s %s: %s: %v", e.Method, e.URL, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Retryable reports whether waiting and resending could help.
// A refused connection means nothing is listening, so it is not retried.
func (e *TransportError) Retryable() bool {
	return e.Kind != KindRefused
}

// APIError is an application-level failure reported by the gateway in a
// response whose status is "ko".
type APIError struct {
	Code    int
	Message string
	Body    Response
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway: error code %d", e.Code)
	}
	return fmt.Sprintf("gateway: error code %d: %s", e.Code, e.Message)
}

// Busy reports whether the gateway or lock was occupied (400 or 500).
func (e *APIError) Busy() bool {
	return e.Code == CodeActionInProgress || e.Code == CodeBusy
}

// Transient reports whether the error is a stale timestamp or unspecified
// transient failure (33 or 34).
func (e *APIError) Transient() bool {
	return e.Code == CodeStaleTimestamp || e.Code == CodeTransient
}

// ClockInvalid reports whether the gateway needs a synchronize call (38).
func (e *APIError) ClockInvalid() bool {
	return e.Code == CodeClockInvalid
}

// newAPIError builds an APIError from a "ko" response body.
func newAPIError(body Response) *APIError {
	apiErr := &APIError{Code: -1, Body: body}
	if code, ok := body.Int("code"); ok {
		apiErr.Code = code
	}
	if msg := body.String("message"); msg != "" {
		apiErr.Message = msg
	} else {
		apiErr.Message = body.String("error")
	}
	return apiErr
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// TransportKind returns the kind of a wrapped TransportError.
func TransportKind(err error) (ErrorKind, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return "", false
}

// AsAPIError returns the wrapped APIError, if any.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// ErrorCode returns the gateway error code carried by err, if any.
func ErrorCode(err error) (int, bool) {
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr.Code, true
	}
	return 0, false
}

// classify maps a low-level network error onto an ErrorKind.
func classify(err error) ErrorKind {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return KindRefused
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindDNS
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return KindReset
	}

	return KindOther
}

// parseCode accepts a JSON number or numeric string.
func parseCode(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
