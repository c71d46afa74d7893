// Package textsynth is a typed client for the TextSynth text generation API.
//
// A Client is built once and shared; every method performs exactly one HTTP
// call (unless retries are enabled on the builder) and returns either a typed
// response or an *Error:
//
//	client, err := textsynth.NewClientBuilder().APIKey(key).Build()
//	if err != nil {
//		return err
//	}
//	req, err := textsynth.NewCompletionRequestBuilder().Prompt("Once upon a time").MaxTokens(50).Build()
//	if err != nil {
//		return err
//	}
//	resp, err := client.Completions(ctx, textsynth.GPTJ6B, req)
package textsynth

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/elikoga/textsynth/internal/core"
	"github.com/elikoga/textsynth/internal/httpclient"
	"github.com/elikoga/textsynth/internal/llmclient"
	"github.com/elikoga/textsynth/internal/observability"
	"github.com/elikoga/textsynth/internal/version"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.textsynth.com/v1"

type (
	RetryConfig          = llmclient.RetryConfig
	CircuitBreakerConfig = llmclient.CircuitBreakerConfig
	TransportConfig      = httpclient.ClientConfig
	Hooks                = llmclient.Hooks
	RequestInfo          = llmclient.RequestInfo
	ResponseInfo         = llmclient.ResponseInfo
)

// Client is safe for concurrent use. Its configuration cannot change after Build.
type Client struct {
	client *llmclient.Client
	apiKey string
}

// New builds a client with the default endpoint and settings.
func New(apiKey string) (*Client, error) {
	return NewClientBuilder().APIKey(apiKey).Build()
}

// ClientBuilder stages client configuration. Only the API key is required.
type ClientBuilder struct {
	apiKey     *string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	transport  *TransportConfig
	retry      *RetryConfig
	breaker    *CircuitBreakerConfig
	hooks      []Hooks
	registerer prometheus.Registerer
}

// NewClientBuilder returns an empty builder.
func NewClientBuilder() *ClientBuilder {
	return &ClientBuilder{}
}

func (b *ClientBuilder) APIKey(key string) *ClientBuilder {
	b.apiKey = &key
	return b
}

// BaseURL overrides DefaultBaseURL.
func (b *ClientBuilder) BaseURL(u string) *ClientBuilder {
	b.baseURL = u
	return b
}

// Timeout bounds every call. For streams it covers the whole body.
func (b *ClientBuilder) Timeout(d time.Duration) *ClientBuilder {
	b.timeout = d
	return b
}

// HTTPClient replaces the pooled transport. Takes precedence over Transport.
func (b *ClientBuilder) HTTPClient(c *http.Client) *ClientBuilder {
	b.httpClient = c
	return b
}

// Transport tunes the connection pool.
func (b *ClientBuilder) Transport(cfg TransportConfig) *ClientBuilder {
	b.transport = &cfg
	return b
}

// Retry enables retries of non-streaming calls on network errors, 429 and 502-504.
func (b *ClientBuilder) Retry(cfg RetryConfig) *ClientBuilder {
	b.retry = &cfg
	return b
}

// CircuitBreaker enables failing fast after repeated failures.
func (b *ClientBuilder) CircuitBreaker(cfg CircuitBreakerConfig) *ClientBuilder {
	b.breaker = &cfg
	return b
}

// Hooks adds call observers. May be called more than once.
func (b *ClientBuilder) Hooks(h Hooks) *ClientBuilder {
	b.hooks = append(b.hooks, h)
	return b
}

// Metrics registers Prometheus collectors for this client with reg.
func (b *ClientBuilder) Metrics(reg prometheus.Registerer) *ClientBuilder {
	b.registerer = reg
	return b
}

// Build validates the staged values and returns the client.
func (b *ClientBuilder) Build() (*Client, error) {
	if b.apiKey == nil || strings.TrimSpace(*b.apiKey) == "" {
		return nil, core.NewConfigurationError("api key is required")
	}

	baseURL := b.baseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if err := validateBaseURL(baseURL); err != nil {
		return nil, err
	}
	if b.timeout < 0 {
		return nil, core.NewConfigurationError("timeout must not be negative")
	}

	cfg := llmclient.DefaultConfig(baseURL)
	cfg.Timeout = b.timeout
	if b.retry != nil {
		if b.retry.MaxRetries < 0 {
			return nil, core.NewConfigurationError("max retries must not be negative")
		}
		cfg.Retry = *b.retry
	}
	if b.breaker != nil {
		breaker := *b.breaker
		cfg.CircuitBreaker = &breaker
	}

	hooks := b.hooks
	if b.registerer != nil {
		metrics, err := observability.NewMetrics(b.registerer)
		if err != nil {
			return nil, core.NewConfigurationError("failed to register metrics: " + err.Error())
		}
		hooks = append(hooks, metrics.Hooks())
	}
	switch len(hooks) {
	case 0:
	case 1:
		cfg.Hooks = hooks[0]
	default:
		cfg.Hooks = llmclient.ChainHooks(hooks...)
	}

	httpClient := b.httpClient
	if httpClient == nil {
		httpClient = httpclient.NewHTTPClient(b.transport)
	}

	c := &Client{apiKey: *b.apiKey}
	c.client = llmclient.NewWithHTTPClient(httpClient, cfg, c.setHeaders)
	return c, nil
}

// BaseURL returns the endpoint the client talks to.
func (c *Client) BaseURL() string {
	return c.client.BaseURL()
}

// setHeaders sets the authorization and correlation headers on every request
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", "textsynth-go/"+version.Short())

	if requestID := core.GetRequestID(req.Context()); requestID != "" {
		req.Header.Set(core.RequestIDHeader, requestID)
	}
}

// WithRequestID attaches a request ID that is sent as X-Request-ID. Without one
// the client generates a random ID per call.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return core.WithRequestID(ctx, requestID)
}

// requireBuilt rejects requests that did not come from a builder.
func requireBuilt(missing bool, operation string) error {
	if missing {
		return core.NewConfigurationErrorf("%s: request must be created with its builder", operation)
	}
	return nil
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return core.NewConfigurationError("invalid base url: " + err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return core.NewConfigurationErrorf("invalid base url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return core.NewConfigurationErrorf("invalid base url %q: missing host", raw)
	}
	return nil
}

func engineEndpoint(engine Engine, operation string) string {
	return "/engines/" + url.PathEscape(engine.String()) + "/" + operation
}
