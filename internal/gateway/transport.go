package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nerrad567/lockgate/internal/retry"
)

// Transport defaults.
const (
	// DefaultRequestTimeout bounds a single HTTP attempt.
	DefaultRequestTimeout = 10 * time.Second

	// DefaultTransportAttempts is the number of HTTP attempts per request.
	DefaultTransportAttempts = 3

	// DefaultTransportBackoff is the wait after the first failed attempt.
	// It doubles for each attempt after that.
	DefaultTransportBackoff = 1 * time.Second

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 1 << 20
)

// Request is one HTTP exchange with the gateway.
type Request struct {
	// Path is appended to the gateway base URL.
	Path string

	// Form holds fields sent form-encoded in a POST. A nil or empty Form
	// produces a GET.
	Form url.Values

	// Timeout overrides the per-attempt timeout when positive.
	Timeout time.Duration

	// MaxAttempts overrides the number of attempts when positive.
	MaxAttempts int

	// Pace, when set, runs before every retry, after the backoff. Client
	// uses it to hold retries to the rate limiter.
	Pace func(ctx context.Context) error
}

// TransportConfig configures a Transport.
type TransportConfig struct {
	// BaseURL is the gateway root, e.g. "http://192.168.1.20".
	BaseURL string

	// Timeout bounds a single attempt. Zero means DefaultRequestTimeout.
	Timeout time.Duration

	// MaxAttempts is the default number of attempts. Zero means
	// DefaultTransportAttempts.
	MaxAttempts int

	// Backoff is the wait after the first failure. Zero means
	// DefaultTransportBackoff.
	Backoff time.Duration

	// HTTPClient is used for requests. Nil means a new client.
	HTTPClient *http.Client

	// Logger is optional.
	Logger Logger
}

// Transport sends requests to a gateway and decodes JSON responses.
// Network failures are retried with exponential backoff; a refused
// connection, a malformed body and caller cancellation are not.
type Transport struct {
	baseURL     string
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
	httpClient  *http.Client
	logger      Logger
}

// NewTransport creates a Transport.
func NewTransport(cfg TransportConfig) *Transport {
	t := &Transport{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		timeout:     cfg.Timeout,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		httpClient:  cfg.HTTPClient,
		logger:      cfg.Logger,
	}
	if t.timeout <= 0 {
		t.timeout = DefaultRequestTimeout
	}
	if t.maxAttempts <= 0 {
		t.maxAttempts = DefaultTransportAttempts
	}
	if t.backoff <= 0 {
		t.backoff = DefaultTransportBackoff
	}
	if t.httpClient == nil {
		t.httpClient = &http.Client{}
	}
	if t.logger == nil {
		t.logger = noopLogger{}
	}
	return t
}

// BaseURL returns the gateway root URL.
func (t *Transport) BaseURL() string {
	return t.baseURL
}

// Do performs req, retrying transient network failures.
//
// Errors:
//   - *TransportError for network failures (after retries, if retryable)
//   - ErrInvalidResponse if the body is not a JSON object
//   - ctx.Err() if the caller's context ends
func (t *Transport) Do(ctx context.Context, req Request) (Response, error) {
	attempts := t.maxAttempts
	if req.MaxAttempts > 0 {
		attempts = req.MaxAttempts
	}
	timeout := t.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	policy := retry.Policy{
		MaxAttempts: attempts,
		Backoff:     retry.Exponential(t.backoff),
		Retryable: func(_ int, err error) bool {
			var te *TransportError
			return errors.As(err, &te) && te.Retryable()
		},
		OnRetry: func(attempt int, err error, wait time.Duration) {
			t.logger.Debug("gateway request failed, retrying",
				"path", req.Path,
				"attempt", attempt,
				"wait", wait,
				"error", err,
			)
		},
	}

	var resp Response
	err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		if attempt > 1 && req.Pace != nil {
			if err := req.Pace(ctx); err != nil {
				return retry.Permanent(err)
			}
		}
		r, err := t.once(ctx, req, timeout)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		var te *TransportError
		if attempts > 1 && errors.As(err, &te) && te.Retryable() {
			t.logger.Warn("gateway request failed after retries",
				"path", req.Path,
				"attempts", attempts,
				"kind", string(te.Kind),
				"error", te.Err,
			)
		}
		return nil, err
	}
	return resp, nil
}

// once performs a single attempt. Errors that must not be retried are
// wrapped with retry.Permanent.
func (t *Transport) once(ctx context.Context, req Request, timeout time.Duration) (Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := t.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	method := http.MethodGet
	var body io.Reader
	if len(req.Form) > 0 {
		method = http.MethodPost
		body = strings.NewReader(req.Form.Encode())
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, method, endpoint, body)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("gateway: building request: %w", err))
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, t.transportError(ctx, method, endpoint, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, t.transportError(ctx, method, endpoint, err)
	}

	var decoded Response
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded == nil {
		if err == nil {
			err = errors.New("body is not a JSON object")
		}
		return nil, retry.Permanent(fmt.Errorf("%w: HTTP %d from %s: %v",
			ErrInvalidResponse, httpResp.StatusCode, endpoint, err))
	}
	return decoded, nil
}

// transportError classifies a network failure. When the caller's own
// context ended, its error is returned as-is and the loop stops.
func (t *Transport) transportError(ctx context.Context, method, endpoint string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return retry.Permanent(ctxErr)
	}
	return &TransportError{
		Kind:   classify(err),
		Method: method,
		URL:    endpoint,
		Err:    err,
	}
}
