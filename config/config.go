// Package config loads the settings of the textsynth command line tool.
//
// Values are resolved in this order, later sources winning:
//  1. built-in defaults
//  2. textsynth.yaml (or the file passed to Load), with ${VAR} and ${VAR:-default} expansion
//  3. environment variables, including those from an optional .env file
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/elikoga/textsynth/internal/httpclient"
	"github.com/elikoga/textsynth/internal/llmclient"
)

// DefaultFile is read when Load is called without a path and the file exists.
const DefaultFile = "textsynth.yaml"

// Config holds the application configuration
type Config struct {
	TextSynth  TextSynthConfig         `yaml:"textsynth"`
	HTTP       httpclient.ClientConfig `yaml:"http"`
	Resilience ResilienceConfig        `yaml:"resilience"`
	Logging    LoggingConfig           `yaml:"logging"`
}

// TextSynthConfig holds the API account and call settings
type TextSynthConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	// Engine is used when a command does not name one
	Engine string `yaml:"engine"`
	// Timeout bounds each call; 0 disables the deadline
	Timeout time.Duration `yaml:"timeout"`
}

// ResilienceConfig holds the opt-in retry and circuit breaker settings
type ResilienceConfig struct {
	Retry          llmclient.RetryConfig `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig  `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig adds an on/off switch to the breaker thresholds
type CircuitBreakerConfig struct {
	Enabled                        bool `yaml:"enabled"`
	llmclient.CircuitBreakerConfig `yaml:",inline"`
}

// LoggingConfig controls the process logger
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`
	// Format is auto (text on a terminal, JSON otherwise), text or json
	Format string `yaml:"format"`
}

func buildDefaultConfig() *Config {
	return &Config{
		TextSynth: TextSynthConfig{
			BaseURL: "https://api.textsynth.com/v1",
			Engine:  "gptj_6B",
		},
		HTTP: httpclient.DefaultConfig(),
		Resilience: ResilienceConfig{
			Retry: llmclient.DefaultRetryConfig(),
			CircuitBreaker: CircuitBreakerConfig{
				CircuitBreakerConfig: llmclient.CircuitBreakerConfig{
					FailureThreshold: 5,
					SuccessThreshold: 2,
					Timeout:          30 * time.Second,
				},
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load reads .env from the working directory, then the YAML file at path,
// then the environment. An empty path reads DefaultFile if it exists; an
// explicit path must exist.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := buildDefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decodeYAML(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeYAML expands environment placeholders in scalar values before
// decoding, so placeholders in comments and keys are left alone.
func decodeYAML(data []byte, cfg *Config) error {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return err
	}
	if root.Kind == 0 {
		return nil
	}
	expandNode(&root)
	return root.Decode(cfg)
}

func expandNode(n *yaml.Node) {
	if n.Kind == yaml.ScalarNode {
		n.Value = expandString(n.Value)
		return
	}
	for i, child := range n.Content {
		// mapping keys sit at even indexes
		if n.Kind == yaml.MappingNode && i%2 == 0 {
			continue
		}
		expandNode(child)
	}
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} with the value of VAR and ${VAR:-default} with
// the value of VAR or default when VAR is unset or empty. Placeholders without
// a default whose variable is unset or empty are kept as written.
func expandString(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return placeholder.ReplaceAllStringFunc(s, func(match string) string {
		parts := placeholder.FindStringSubmatch(match)
		if v := os.Getenv(parts[1]); v != "" {
			return v
		}
		if parts[2] != "" {
			return parts[3]
		}
		return match
	})
}

func applyEnvOverrides(cfg *Config) error {
	if v := firstEnv("TEXTSYNTH_API_KEY", "TEXT_SYNTH_API_KEY"); v != "" {
		cfg.TextSynth.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("TEXTSYNTH_BASE_URL")); v != "" {
		cfg.TextSynth.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("TEXTSYNTH_ENGINE")); v != "" {
		cfg.TextSynth.Engine = v
	}
	if v := strings.TrimSpace(os.Getenv("TEXTSYNTH_TIMEOUT")); v != "" {
		d, ok := httpclient.ParseDuration(v)
		if !ok {
			return fmt.Errorf("invalid TEXTSYNTH_TIMEOUT %q: want seconds or a Go duration", v)
		}
		cfg.TextSynth.Timeout = d
	}
	if v := strings.TrimSpace(os.Getenv("TEXTSYNTH_MAX_RETRIES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid TEXTSYNTH_MAX_RETRIES %q: %w", v, err)
		}
		cfg.Resilience.Retry.MaxRetries = n
	}
	if v := strings.TrimSpace(os.Getenv("TEXTSYNTH_CIRCUIT_BREAKER")); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid TEXTSYNTH_CIRCUIT_BREAKER %q: %w", v, err)
		}
		cfg.Resilience.CircuitBreaker.Enabled = enabled
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("LOG_FORMAT")); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	return nil
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

// Validate checks value ranges. A missing API key is not an error here since
// some commands, such as engines and version, do not call the API.
func (c *Config) Validate() error {
	if c.TextSynth.Timeout < 0 {
		return errors.New("textsynth.timeout must not be negative")
	}
	if c.Resilience.Retry.MaxRetries < 0 {
		return errors.New("resilience.retry.max_retries must not be negative")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "auto", "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be one of auto, text, json", c.Logging.Format)
	}
	return nil
}

// CircuitBreaker returns the breaker settings, or nil when disabled.
func (c *Config) CircuitBreaker() *llmclient.CircuitBreakerConfig {
	if !c.Resilience.CircuitBreaker.Enabled {
		return nil
	}
	cb := c.Resilience.CircuitBreaker.CircuitBreakerConfig
	return &cb
}
