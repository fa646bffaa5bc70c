package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/nerrad567/lockgate/internal/coordinator"
	"github.com/nerrad567/lockgate/internal/gateway"
	"github.com/nerrad567/lockgate/internal/lock"
)

// Error is the body of every non-2xx response. GatewayCode carries the
// gateway's numeric error code when the failure came from the gateway.
type Error struct {
	Status      int    `json:"status"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	GatewayCode int    `json:"gateway_code,omitempty"`
}

// Error codes.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeNotFound           = "not_found"
	ErrCodeUnauthorized       = "unauthorised"
	ErrCodeInternal           = "internal_error"
	ErrCodeUnavailable        = "unavailable"
	ErrCodeGateway            = "gateway_error"
	ErrCodeGatewayUnreachable = "gateway_unreachable"
)

// classify maps a controller error to its response. Errors it does not
// recognise are internal.
func classify(err error) Error {
	var apiErr *gateway.APIError
	switch {
	case errors.Is(err, lock.ErrDeviceNotFound):
		return Error{Status: http.StatusNotFound, Code: ErrCodeNotFound, Message: "lock not found"}
	case errors.Is(err, coordinator.ErrUnknownVerb):
		return Error{Status: http.StatusBadRequest, Code: ErrCodeBadRequest, Message: err.Error()}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Error{Status: http.StatusServiceUnavailable, Code: ErrCodeUnavailable, Message: "request cancelled"}
	case gateway.IsTransport(err):
		return Error{Status: http.StatusBadGateway, Code: ErrCodeGatewayUnreachable, Message: err.Error()}
	case errors.As(err, &apiErr):
		return Error{
			Status:      http.StatusBadGateway,
			Code:        ErrCodeGateway,
			Message:     fmt.Sprintf("gateway error code %d", apiErr.Code),
			GatewayCode: apiErr.Code,
		}
	}
	return Error{Status: http.StatusInternalServerError, Code: ErrCodeInternal, Message: err.Error()}
}

// writeFailure classifies err and writes it. Gateway and internal failures
// are logged with the request id.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, op string, err error) {
	e := classify(err)
	if e.Status >= http.StatusInternalServerError && e.Status != http.StatusServiceUnavailable {
		s.logger.Warn(op+" failed", "error", err, "request_id", requestID(r))
	}
	if e.Code == ErrCodeInternal {
		e.Message = op + " failed"
	}
	writeJSON(w, e.Status, e)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	//nolint:errcheck // the client may have gone away
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}
