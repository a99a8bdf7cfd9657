// Package authority talks to the tax authority's SOAP web service: document
// submission and status queries over plain HTTP POST with fixed SOAPAction
// headers.
package authority

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	dErrors "nomina/pkg/domain-errors"
	"nomina/pkg/platform/circuit"
)

// Endpoint base URLs per environment.
const (
	TestBaseURL       = "https://vpfe-hab.dian.gov.co/WcfDianCustomerServices.svc"
	ProductionBaseURL = "https://vpfe.dian.gov.co/WcfDianCustomerServices.svc"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxAttempts = 3
	defaultRetryDelay  = 2 * time.Second
)

// Config selects the endpoint and retry behaviour of a Client.
type Config struct {
	// BaseURL of the authority service. Required.
	BaseURL string
	// TestSetID is included in submissions against the test endpoint.
	TestSetID string
	// Timeout bounds each HTTP attempt. Defaults to 30s.
	Timeout time.Duration
	// MaxAttempts bounds transport-error retries per call. Defaults to 3.
	// Authority rejections are never retried.
	MaxAttempts int
	// RetryDelay is the initial delay between attempts; it doubles after
	// each transport failure. Defaults to 2s.
	RetryDelay time.Duration
}

// Client is stateless per call; all state lives in the circuit breaker
// guarding the endpoint. Safe for concurrent use.
type Client struct {
	http      *http.Client
	baseURL   string
	testSetID string

	maxAttempts int
	retryDelay  time.Duration

	breaker *circuit.Breaker
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (tests point it at an
// httptest server).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBreaker installs a shared circuit breaker; by default each client owns
// one.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		if b != nil {
			c.breaker = b
		}
	}
}

// New creates a submission client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "authority base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}

	c := &Client{
		http:        &http.Client{Timeout: cfg.Timeout},
		baseURL:     cfg.BaseURL,
		testSetID:   cfg.TestSetID,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		breaker:     circuit.New("authority"),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Submit sends a signed document. Transport errors are retried with doubling
// delay up to the configured attempts; a parsed authority response (accepted
// or rejected) is returned as a Receipt without error.
func (c *Client) Submit(ctx context.Context, signedXML, contentKey string) (Receipt, error) {
	if signedXML == "" {
		return Receipt{}, dErrors.New(dErrors.CodeValidation, "signed XML is required for submission")
	}
	if contentKey == "" {
		return Receipt{}, dErrors.New(dErrors.CodeValidation, "content key is required for submission")
	}

	envelope, err := submitEnvelope(signedXML, contentKey, c.testSetID)
	if err != nil {
		return Receipt{}, dErrors.Wrap(err, dErrors.CodeInternal, "build submit envelope")
	}

	body, err := c.post(ctx, actionSubmit, envelope)
	if err != nil {
		return Receipt{}, err
	}
	return parseSubmitResponse(body)
}

// QueryStatus polls a previously submitted document by tracking id. Read-only
// and idempotent; it never mutates local document state.
func (c *Client) QueryStatus(ctx context.Context, trackingID string) (StatusResult, error) {
	if trackingID == "" {
		return StatusResult{}, dErrors.New(dErrors.CodeValidation, "tracking id is required")
	}

	envelope, err := statusEnvelope(trackingID)
	if err != nil {
		return StatusResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "build status envelope")
	}

	body, err := c.post(ctx, actionStatus, envelope)
	if err != nil {
		return StatusResult{}, err
	}
	return parseStatusResponse(body)
}

// post performs one SOAP call with bounded retries on transport errors.
func (c *Client) post(ctx context.Context, soapAction string, envelope []byte) ([]byte, error) {
	delay := c.retryDelay
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if !c.breaker.Allow() {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, dErrors.New(dErrors.CodeTransport, "authority circuit open, refusing call")
		}

		body, err := c.postOnce(ctx, soapAction, envelope)
		if err == nil {
			c.breaker.RecordSuccess()
			return body, nil
		}
		lastErr = err

		if _, change := c.breaker.RecordFailure(); change.Opened {
			c.logger.Warn("authority circuit opened", "action", soapAction)
		}
		if attempt == c.maxAttempts {
			break
		}

		c.logger.Warn("authority call failed, retrying",
			"action", soapAction, "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTransport, "authority call cancelled")
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, lastErr
}

func (c *Client) postOnce(ctx context.Context, soapAction string, envelope []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(envelope))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "build authority request")
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", soapAction)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTransport, "post to authority")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTransport, "read authority response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Authorities answer faults with 500; the body still carries the
		// SOAP Fault, so hand it to the parser instead of discarding it.
		if len(body) > 0 {
			return body, nil
		}
		return nil, dErrors.Newf(dErrors.CodeTransport, "authority returned HTTP %d with empty body", resp.StatusCode)
	}
	return body, nil
}
