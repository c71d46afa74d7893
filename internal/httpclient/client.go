// Package httpclient builds the pooled HTTP transport shared by every call a
// client makes.
package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"
)

// ClientConfig holds the connection pool and dial settings.
type ClientConfig struct {
	// MaxIdleConns controls the maximum number of idle (keep-alive) connections across all hosts
	MaxIdleConns int `yaml:"max_idle_conns"`

	// MaxIdleConnsPerHost controls the maximum idle (keep-alive) connections to keep per-host
	MaxIdleConnsPerHost int `yaml:"max_idle_conns_per_host"`

	// IdleConnTimeout is how long an idle connection stays in the pool
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`

	// DialTimeout is the maximum amount of time a dial will wait for a connect to complete
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// KeepAlive specifies the interval between keep-alive messages on an active network connection
	KeepAlive time.Duration `yaml:"keep_alive"`

	// TLSHandshakeTimeout specifies the maximum amount of time to wait for a TLS handshake
	TLSHandshakeTimeout time.Duration `yaml:"tls_handshake_timeout"`

	// ResponseHeaderTimeout bounds the wait for response headers. Zero means no limit;
	// generation can take a while before the first byte.
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout"`
}

// ParseDuration accepts plain integers (seconds) or Go duration strings ("10m", "1h30m").
func ParseDuration(val string) (time.Duration, bool) {
	if val == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d, true
	}
	return 0, false
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if d, ok := ParseDuration(os.Getenv(key)); ok {
		return d
	}
	return defaultVal
}

// DefaultConfig returns the pool defaults. Two knobs can be overridden from the
// environment (seconds or Go duration format):
//   - TEXTSYNTH_HTTP_DIAL_TIMEOUT (default: 30s)
//   - TEXTSYNTH_HTTP_RESPONSE_HEADER_TIMEOUT (default: none)
func DefaultConfig() ClientConfig {
	return ClientConfig{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		DialTimeout:           getEnvDuration("TEXTSYNTH_HTTP_DIAL_TIMEOUT", 30*time.Second),
		KeepAlive:             30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: getEnvDuration("TEXTSYNTH_HTTP_RESPONSE_HEADER_TIMEOUT", 0),
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c ClientConfig) withDefaults() ClientConfig {
	d := DefaultConfig()
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = d.MaxIdleConns
	}
	if c.MaxIdleConnsPerHost == 0 {
		c.MaxIdleConnsPerHost = d.MaxIdleConnsPerHost
	}
	if c.IdleConnTimeout == 0 {
		c.IdleConnTimeout = d.IdleConnTimeout
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = d.KeepAlive
	}
	if c.TLSHandshakeTimeout == 0 {
		c.TLSHandshakeTimeout = d.TLSHandshakeTimeout
	}
	if c.ResponseHeaderTimeout == 0 {
		c.ResponseHeaderTimeout = d.ResponseHeaderTimeout
	}
	return c
}

// NewHTTPClient creates an HTTP client with the provided configuration.
// If config is nil, DefaultConfig() is used; zero fields fall back to the defaults.
//
// The returned client has no overall Timeout: streamed completions can run
// for minutes, so per-call deadlines are applied through the request context.
func NewHTTPClient(config *ClientConfig) *http.Client {
	cfg := DefaultConfig()
	if config != nil {
		cfg = config.withDefaults()
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: cfg.KeepAlive,
		}).DialContext,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{Transport: transport}
}

// NewDefaultHTTPClient creates a new HTTP client with default configuration.
func NewDefaultHTTPClient() *http.Client {
	return NewHTTPClient(nil)
}
