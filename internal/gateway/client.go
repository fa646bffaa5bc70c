package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/nerrad567/lockgate/internal/retry"
)

// Client defaults.
const (
	// DefaultProbeTimeout bounds the single reachability check per cycle.
	DefaultProbeTimeout = 3 * time.Second

	// DefaultStaleTimestampWait is the pause before re-signing after code 33.
	DefaultStaleTimestampWait = 1 * time.Second

	// protocolAttempts is the number of signed sends per Perform call.
	protocolAttempts = 3
)

// Config configures a Client.
type Config struct {
	// ID names the gateway in logs and events.
	ID string

	// Host is an IP address or hostname with an optional port.
	Host string

	// HeavyDelay and LightDelay are the rate-limit spacings. Zero selects
	// DefaultHeavyDelay and DefaultLightDelay.
	HeavyDelay time.Duration
	LightDelay time.Duration

	// RequestTimeout bounds one HTTP attempt. Zero means DefaultRequestTimeout.
	RequestTimeout time.Duration

	// ProbeTimeout bounds the reachability probe. Zero means DefaultProbeTimeout.
	ProbeTimeout time.Duration

	// TransportAttempts and TransportBackoff tune network retries. Zero
	// selects the transport defaults.
	TransportAttempts int
	TransportBackoff  time.Duration

	// StaleTimestampWait is the pause before resending after code 33.
	// Zero means DefaultStaleTimestampWait.
	StaleTimestampWait time.Duration

	// HTTPClient is optional.
	HTTPClient *http.Client

	// Now is the signing clock. Nil means time.Now.
	Now func() time.Time

	// Logger is optional.
	Logger Logger
}

// Client speaks the gateway's HTTP API for one gateway.
//
// Every send waits on the rate limiter and is serialised with every other
// send on the same Client, so a user command never overlaps a poll.
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	id        string
	host      string
	limiter   *RateLimiter
	transport *Transport
	signer    *Signer
	logger    Logger

	probeTimeout time.Duration
	staleWait    time.Duration

	sendMu sync.Mutex
}

// NewClient validates the host and creates a Client.
func NewClient(cfg Config) (*Client, error) {
	if err := ValidateAddress(cfg.Host); err != nil {
		return nil, err
	}

	heavy, light := cfg.HeavyDelay, cfg.LightDelay
	if heavy == 0 {
		heavy = DefaultHeavyDelay
	}
	if light == 0 {
		light = DefaultLightDelay
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	c := &Client{
		id:      cfg.ID,
		host:    cfg.Host,
		limiter: NewRateLimiter(heavy, light),
		transport: NewTransport(TransportConfig{
			BaseURL:     BaseURL(cfg.Host),
			Timeout:     cfg.RequestTimeout,
			MaxAttempts: cfg.TransportAttempts,
			Backoff:     cfg.TransportBackoff,
			HTTPClient:  cfg.HTTPClient,
			Logger:      logger,
		}),
		signer:       NewSigner(cfg.Now),
		logger:       logger,
		probeTimeout: cfg.ProbeTimeout,
		staleWait:    cfg.StaleTimestampWait,
	}
	if c.probeTimeout <= 0 {
		c.probeTimeout = DefaultProbeTimeout
	}
	if c.staleWait <= 0 {
		c.staleWait = DefaultStaleTimestampWait
	}
	return c, nil
}

// ID returns the gateway identifier.
func (c *Client) ID() string { return c.id }

// Host returns the configured gateway address.
func (c *Client) Host() string { return c.host }

// LastRequest returns when the most recent request was let through.
func (c *Client) LastRequest() time.Time { return c.limiter.LastRequest() }

// Perform sends action to the gateway.
//
// Locker actions carry the lock identifier and are signed with the share
// code; each attempt gets a fresh timestamp. If the gateway rejects the
// timestamp (code 33) the call is resent up to three times in total, one
// second apart. Any other "ko" response is returned as *APIError without
// retrying.
func (c *Client) Perform(ctx context.Context, action Action, identifier, shareCode string) (Response, error) {
	if !action.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAction, int(action))
	}
	if action.IsLocker() && identifier == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingIdentifier, action)
	}

	policy := retry.Policy{
		MaxAttempts: protocolAttempts,
		Backoff:     retry.Constant(c.staleWait),
		Retryable: func(_ int, err error) bool {
			code, ok := ErrorCode(err)
			return ok && code == CodeStaleTimestamp
		},
		OnRetry: func(attempt int, _ error, wait time.Duration) {
			c.logger.Debug("gateway rejected timestamp, re-signing",
				"gateway", c.id,
				"action", action.String(),
				"attempt", attempt,
				"wait", wait,
			)
		},
	}

	var resp Response
	err := policy.Do(ctx, func(ctx context.Context, _ int) error {
		r, err := c.send(ctx, action, Request{
			Path: action.Path(),
			Form: c.form(action, identifier, shareCode),
		})
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Probe checks reachability with a single short status request.
func (c *Client) Probe(ctx context.Context) (Response, error) {
	return c.send(ctx, ActionStatus, Request{
		Path:        ActionStatus.Path(),
		Timeout:     c.probeTimeout,
		MaxAttempts: 1,
	})
}

// Status returns the gateway status document.
func (c *Client) Status(ctx context.Context) (Response, error) {
	return c.Perform(ctx, ActionStatus, "", "")
}

// Update asks the gateway to refresh its own firmware state.
func (c *Client) Update(ctx context.Context) error {
	_, err := c.Perform(ctx, ActionUpdate, "", "")
	return err
}

// Synchronize asks the gateway to set its clock and resync with its locks.
func (c *Client) Synchronize(ctx context.Context) error {
	_, err := c.Perform(ctx, ActionSynchronize, "", "")
	return err
}

// LockerOpen opens the lock.
func (c *Client) LockerOpen(ctx context.Context, identifier, shareCode string) error {
	_, err := c.Perform(ctx, ActionLockerOpen, identifier, shareCode)
	return err
}

// LockerClose closes the lock.
func (c *Client) LockerClose(ctx context.Context, identifier, shareCode string) error {
	_, err := c.Perform(ctx, ActionLockerClose, identifier, shareCode)
	return err
}

// LockerCalibrate runs the lock's calibration routine.
func (c *Client) LockerCalibrate(ctx context.Context, identifier, shareCode string) error {
	_, err := c.Perform(ctx, ActionLockerCalibrate, identifier, shareCode)
	return err
}

// LockerStatus returns the lock status document.
func (c *Client) LockerStatus(ctx context.Context, identifier, shareCode string) (Response, error) {
	return c.Perform(ctx, ActionLockerStatus, identifier, shareCode)
}

// LockerSynchronize pushes time and configuration to the lock.
func (c *Client) LockerSynchronize(ctx context.Context, identifier, shareCode string) error {
	_, err := c.Perform(ctx, ActionLockerSynchronize, identifier, shareCode)
	return err
}

// LockerUpdate asks the lock to refresh its firmware state.
func (c *Client) LockerUpdate(ctx context.Context, identifier, shareCode string) error {
	_, err := c.Perform(ctx, ActionLockerUpdate, identifier, shareCode)
	return err
}

// form builds the request fields for one attempt, signing the current time.
func (c *Client) form(action Action, identifier, shareCode string) url.Values {
	form := action.payload()
	if identifier != "" {
		form.Set("identifier", identifier)
	}
	if shareCode != "" {
		sig := c.signer.Sign(shareCode)
		form.Set("ts", sig.Timestamp)
		form.Set("hash", sig.Hash)
	}
	return form
}

// send waits on the limiter and performs one transport request. Transport
// retries wait on the limiter again, so no resend beats the class delay.
// A "ko" response becomes *APIError.
func (c *Client) send(ctx context.Context, action Action, req Request) (Response, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	pace := func(ctx context.Context) error {
		return c.limiter.Wait(ctx, action.RateClass())
	}
	if err := pace(ctx); err != nil {
		return nil, err
	}
	req.Pace = pace

	resp, err := c.transport.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		apiErr := newAPIError(resp)
		c.logger.Debug("gateway returned error",
			"gateway", c.id,
			"action", action.String(),
			"code", apiErr.Code,
			"message", apiErr.Message,
		)
		return nil, apiErr
	}
	return resp, nil
}

// BaseURL returns the HTTP root for a gateway host, bracketing bare IPv6
// addresses.
func BaseURL(host string) string {
	if ip := net.ParseIP(host); ip != nil && ip.To4() == nil {
		return "http://[" + host + "]"
	}
	return "http://" + host
}
