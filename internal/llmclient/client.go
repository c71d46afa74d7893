// Package llmclient executes JSON-over-HTTP calls against the TextSynth API:
// - request marshaling and response decoding
// - classification of every failure into a core.Error
// - per-call deadlines
// - optional retries with exponential backoff and an optional circuit breaker
// - observation hooks
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elikoga/textsynth/internal/core"
	"github.com/elikoga/textsynth/internal/httpclient"
)

// RetryConfig controls retries of failed non-streaming calls.
// MaxRetries is 0 unless the caller opts in.
type RetryConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	BackoffFactor  float64       `yaml:"backoff_factor"`
}

// DefaultRetryConfig returns a retry policy that never retries but has sane
// backoff values for callers who only raise MaxRetries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     0,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
	}
}

// CircuitBreakerConfig holds circuit breaker settings
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of failures before opening the circuit
	FailureThreshold int `yaml:"failure_threshold"`
	// SuccessThreshold is the number of successes needed to close a half-open circuit
	SuccessThreshold int `yaml:"success_threshold"`
	// Timeout is how long to wait before letting a trial request through an open circuit
	Timeout time.Duration `yaml:"timeout"`
}

// Config holds configuration for the client
type Config struct {
	// BaseURL is the API base URL, without trailing slash
	BaseURL string

	// Timeout bounds each call, including reading a streamed body. Zero means no limit.
	Timeout time.Duration

	Retry RetryConfig

	// CircuitBreaker is nil unless the caller opts in
	CircuitBreaker *CircuitBreakerConfig

	Hooks Hooks
}

// DefaultConfig returns a single-attempt configuration without a deadline.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL: baseURL,
		Retry:   DefaultRetryConfig(),
	}
}

// HeaderSetter is a function that sets headers on an HTTP request
type HeaderSetter func(req *http.Request)

// Client executes requests. It holds no per-call state and is safe for
// concurrent use; connections are pooled by the underlying http.Client.
type Client struct {
	httpClient     *http.Client
	config         Config
	headerSetter   HeaderSetter
	circuitBreaker *circuitBreaker
}

// New creates a client on a fresh pooled transport.
func New(config Config, headerSetter HeaderSetter) *Client {
	return NewWithHTTPClient(httpclient.NewDefaultHTTPClient(), config, headerSetter)
}

// NewWithHTTPClient creates a client on the given HTTP client.
// If httpClient is nil, a default pooled client is created.
func NewWithHTTPClient(httpClient *http.Client, config Config, headerSetter HeaderSetter) *Client {
	if httpClient == nil {
		httpClient = httpclient.NewDefaultHTTPClient()
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	c := &Client{
		httpClient:   httpClient,
		config:       config,
		headerSetter: headerSetter,
	}

	if cb := config.CircuitBreaker; cb != nil {
		c.circuitBreaker = newCircuitBreaker(cb.FailureThreshold, cb.SuccessThreshold, cb.Timeout)
	}

	return c
}

// BaseURL returns the base URL requests are resolved against
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Timeout returns the per-call deadline, zero when unset
func (c *Client) Timeout() time.Duration {
	return c.config.Timeout
}

// Request represents an HTTP request to be made
type Request struct {
	// Operation names the endpoint for hooks and logs (e.g. "completions")
	Operation string
	Method    string
	Endpoint  string
	Body      any // JSON marshaled if not nil
	Headers   map[string]string
}

// Response represents a buffered HTTP response
type Response struct {
	StatusCode int
	Body       []byte
}

// Do executes a request and decodes the JSON response into result.
func (c *Client) Do(ctx context.Context, req Request, result any) error {
	resp, err := c.DoRaw(ctx, req)
	if err != nil {
		return err
	}

	if result == nil {
		return nil
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return core.NewDecodeError("empty response body", resp.Body, nil)
	}
	if err := json.Unmarshal(resp.Body, result); err != nil {
		return core.NewDecodeError("failed to decode "+operationName(req)+" response: "+err.Error(), resp.Body, err)
	}
	return nil
}

// DoRaw executes a request and returns the buffered 2xx response.
// Failed attempts are retried only when Retry.MaxRetries > 0.
func (c *Client) DoRaw(ctx context.Context, req Request) (*Response, error) {
	ctx, _ = core.EnsureRequestID(ctx)
	info := c.requestInfo(ctx, req, false)
	ctx = c.config.Hooks.start(ctx, info)
	start := time.Now()

	resp, err := c.doWithRetries(ctx, req)

	end := ResponseInfo{RequestInfo: info, Duration: time.Since(start), Err: err}
	if resp != nil {
		end.StatusCode = resp.StatusCode
	}
	if e, ok := core.AsError(err); ok {
		end.ErrorType = e.Type
		end.StatusCode = e.StatusCode
	}
	c.config.Hooks.end(ctx, end)

	return resp, err
}

func (c *Client) doWithRetries(ctx context.Context, req Request) (*Response, error) {
	if c.circuitBreaker != nil && !c.circuitBreaker.Allow() {
		return nil, core.NewNetworkError("circuit breaker is open - API temporarily unavailable", ErrCircuitOpen)
	}

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	maxAttempts := c.config.Retry.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.calculateBackoff(attempt)
			slog.Debug("retrying textsynth request",
				"operation", operationName(req),
				"attempt", attempt,
				"backoff", backoff,
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				return nil, core.NewNetworkError("request cancelled while waiting to retry", ctx.Err())
			case <-time.After(backoff):
			}
		}

		resp, err := c.doRequest(ctx, req)
		if err != nil {
			if core.ErrorTypeOf(err) == core.ErrorTypeConfiguration {
				return nil, err
			}
			lastErr = err
			c.recordFailure()
			if ctx.Err() != nil {
				// The caller's deadline is gone, another attempt cannot succeed.
				return nil, err
			}
			continue
		}

		if isSuccess(resp.StatusCode) {
			c.recordSuccess()
			return resp, nil
		}

		statusErr := core.NewHTTPStatusError(resp.StatusCode, resp.Body)
		if core.IsRetryableStatus(resp.StatusCode) {
			c.recordFailure()
			lastErr = statusErr
			continue
		}
		if resp.StatusCode >= 500 {
			c.recordFailure()
		}
		return nil, statusErr
	}

	return nil, lastErr
}

// DoStream executes a request and hands back the open 2xx body. The caller must
// close it; closing releases the connection and the per-call deadline.
// Streaming requests are never retried since part of the output may have been consumed.
func (c *Client) DoStream(ctx context.Context, req Request) (io.ReadCloser, error) {
	ctx, _ = core.EnsureRequestID(ctx)
	info := c.requestInfo(ctx, req, true)
	ctx = c.config.Hooks.start(ctx, info)
	start := time.Now()

	fail := func(err *core.Error) (io.ReadCloser, error) {
		c.config.Hooks.end(ctx, ResponseInfo{
			RequestInfo: info,
			StatusCode:  err.StatusCode,
			Duration:    time.Since(start),
			ErrorType:   err.Type,
			Err:         err,
		})
		return nil, err
	}

	if c.circuitBreaker != nil && !c.circuitBreaker.Allow() {
		return fail(core.NewNetworkError("circuit breaker is open - API temporarily unavailable", ErrCircuitOpen))
	}

	callCtx, cancel := c.callContext(ctx)

	httpReq, buildErr := c.buildRequest(callCtx, req)
	if buildErr != nil {
		cancel()
		return fail(buildErr)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		c.recordFailure()
		return fail(core.NewNetworkError("failed to send request: "+err.Error(), err))
	}

	if !isSuccess(resp.StatusCode) {
		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		cancel()
		if readErr != nil {
			c.recordFailure()
			return fail(core.NewNetworkError("failed to read error response: "+readErr.Error(), readErr))
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			c.recordFailure()
		}
		return fail(core.NewHTTPStatusError(resp.StatusCode, respBody))
	}

	c.recordSuccess()
	return &streamBody{
		ReadCloser: resp.Body,
		ctx:        callCtx,
		cancel:     cancel,
		onClose: func(err error) {
			c.config.Hooks.end(ctx, ResponseInfo{
				RequestInfo: info,
				StatusCode:  resp.StatusCode,
				Duration:    time.Since(start),
				ErrorType:   core.ErrorTypeOf(err),
				Err:         err,
			})
		},
	}, nil
}

// StreamFailer is implemented by the bodies DoStream returns. A consumer that
// gives up on a body, for example on undecodable data, reports why through
// Fail before closing it so the end hook sees the failure.
type StreamFailer interface {
	Fail(err error)
}

// streamBody ties the per-call context and the end hook to the body's lifetime.
type streamBody struct {
	io.ReadCloser
	ctx     context.Context
	cancel  context.CancelFunc
	onClose func(err error)

	// closing is set once Close starts; read errors after that are the
	// consequence of closing, not failures.
	closing atomic.Bool

	mu  sync.Mutex
	err error

	once     sync.Once
	closeErr error
}

// Read converts failed reads into network errors and records the first one.
// Reads cut short by the call context keep the deadline as their cause.
func (s *streamBody) Read(p []byte) (int, error) {
	n, err := s.ReadCloser.Read(p)
	if err == nil || err == io.EOF || s.closing.Load() {
		return n, err
	}
	cause := err
	if ctxErr := s.ctx.Err(); ctxErr != nil {
		cause = ctxErr
	}
	netErr := core.NewNetworkError("stream interrupted: "+cause.Error(), cause)
	s.Fail(netErr)
	return n, netErr
}

// Fail records why the stream ended early. The first error wins.
func (s *streamBody) Fail(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *streamBody) Close() error {
	s.once.Do(func() {
		s.closing.Store(true)
		s.closeErr = s.ReadCloser.Close()
		s.cancel()

		s.mu.Lock()
		err := s.err
		s.mu.Unlock()
		if s.onClose != nil {
			s.onClose(err)
		}
	})
	return s.closeErr
}

// doRequest executes a single HTTP request without retries
func (c *Client) doRequest(ctx context.Context, req Request) (*Response, error) {
	httpReq, buildErr := c.buildRequest(ctx, req)
	if buildErr != nil {
		return nil, buildErr
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.NewNetworkError("failed to send request: "+err.Error(), err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewNetworkError("failed to read response: "+err.Error(), err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}

// buildRequest creates an HTTP request from a Request
func (c *Client) buildRequest(ctx context.Context, req Request) (*http.Request, *core.Error) {
	url := c.config.BaseURL + req.Endpoint

	var bodyReader io.Reader
	if req.Body != nil {
		bodyBytes, err := json.Marshal(req.Body)
		if err != nil {
			return nil, core.NewConfigurationError("failed to marshal request: " + err.Error())
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, bodyReader)
	if err != nil {
		return nil, core.NewConfigurationError("failed to create request: " + err.Error())
	}

	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")

	if c.headerSetter != nil {
		c.headerSetter(httpReq)
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	return httpReq, nil
}

// callContext applies the configured per-call deadline. A cancel func is always
// returned so stream bodies can release the context on Close.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.Timeout > 0 {
		return context.WithTimeout(ctx, c.config.Timeout)
	}
	return context.WithCancel(ctx)
}

func (c *Client) requestInfo(ctx context.Context, req Request, stream bool) RequestInfo {
	return RequestInfo{
		Operation: operationName(req),
		Method:    req.Method,
		Endpoint:  req.Endpoint,
		Stream:    stream,
		RequestID: core.GetRequestID(ctx),
	}
}

// calculateBackoff calculates the backoff duration for a given attempt
func (c *Client) calculateBackoff(attempt int) time.Duration {
	r := c.config.Retry
	factor := r.BackoffFactor
	if factor <= 0 {
		factor = 2.0
	}
	backoff := float64(r.InitialBackoff) * math.Pow(factor, float64(attempt-1))
	if r.MaxBackoff > 0 && backoff > float64(r.MaxBackoff) {
		backoff = float64(r.MaxBackoff)
	}
	return time.Duration(backoff)
}

func (c *Client) recordFailure() {
	if c.circuitBreaker != nil {
		c.circuitBreaker.RecordFailure()
	}
}

func (c *Client) recordSuccess() {
	if c.circuitBreaker != nil {
		c.circuitBreaker.RecordSuccess()
	}
}

func isSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

func operationName(req Request) string {
	if req.Operation != "" {
		return req.Operation
	}
	return req.Endpoint
}

// ErrCircuitOpen is the cause attached to calls rejected by an open circuit.
var ErrCircuitOpen = errors.New("circuit open")
