// Package cli implements the textsynth command line tool.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/elikoga/textsynth/config"
	"github.com/elikoga/textsynth/internal/logging"
	"github.com/elikoga/textsynth/pkg/textsynth"
)

// Run executes the command line in args. Cancelling ctx aborts the call in flight.
// The metrics textfile is written whether or not the command succeeded.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{stderr: stderr}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if metricsErr := a.writeMetrics(); metricsErr != nil {
		if err != nil {
			return errors.Join(err, metricsErr)
		}
		return metricsErr
	}
	return err
}

type globalOptions struct {
	cfgPath     string
	apiKey      string
	baseURL     string
	timeout     time.Duration
	engine      string
	json        bool
	logLevel    string
	metricsFile string
}

// app carries the state shared by every subcommand after flags are parsed.
type app struct {
	opts   globalOptions
	cfg    *config.Config
	stderr io.Writer
	logger *slog.Logger
	reg    *prometheus.Registry
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "textsynth",
		Short:         "TextSynth API command line client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	fs := cmd.PersistentFlags()
	fs.StringVarP(&a.opts.cfgPath, "config", "c", "", "config yaml path (default ./"+config.DefaultFile+" if present)")
	fs.StringVar(&a.opts.apiKey, "api-key", "", "API key (overrides TEXTSYNTH_API_KEY)")
	fs.StringVar(&a.opts.baseURL, "base-url", "", "API base url")
	fs.DurationVar(&a.opts.timeout, "timeout", 0, "per-call timeout, 0 keeps the configured value")
	fs.StringVarP(&a.opts.engine, "engine", "e", "", "engine id")
	fs.BoolVar(&a.opts.json, "json", false, "print raw JSON responses")
	fs.StringVar(&a.opts.logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&a.opts.metricsFile, "metrics-textfile", "", "write Prometheus metrics of this run to the file")

	cmd.AddCommand(
		newCompleteCmd(a),
		newChatCmd(a),
		newLogprobCmd(a),
		newTokenizeCmd(a),
		newTranslateCmd(a),
		newCreditsCmd(a),
		newEnginesCmd(a),
		newVersionCmd(),
	)
	return cmd
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.opts.cfgPath)
	if err != nil {
		return err
	}
	if a.opts.apiKey != "" {
		cfg.TextSynth.APIKey = a.opts.apiKey
	}
	if a.opts.baseURL != "" {
		cfg.TextSynth.BaseURL = a.opts.baseURL
	}
	if a.opts.timeout > 0 {
		cfg.TextSynth.Timeout = a.opts.timeout
	}
	if a.opts.engine != "" {
		cfg.TextSynth.Engine = a.opts.engine
	}
	if a.opts.logLevel != "" {
		cfg.Logging.Level = strings.ToLower(a.opts.logLevel)
	}

	logger, err := logging.New(a.stderr, logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	a.cfg = cfg
	a.logger = logger
	return nil
}

// client builds an API client from the resolved configuration.
func (a *app) client() (*textsynth.Client, error) {
	b := textsynth.NewClientBuilder().
		APIKey(a.cfg.TextSynth.APIKey).
		BaseURL(a.cfg.TextSynth.BaseURL).
		Timeout(a.cfg.TextSynth.Timeout).
		Transport(a.cfg.HTTP).
		Retry(a.cfg.Resilience.Retry).
		Hooks(logHooks(a.logger))
	if cb := a.cfg.CircuitBreaker(); cb != nil {
		b.CircuitBreaker(*cb)
	}
	if a.opts.metricsFile != "" {
		a.reg = prometheus.NewRegistry()
		b.Metrics(a.reg)
	}
	return b.Build()
}

func (a *app) writeMetrics() error {
	if a.reg == nil || a.opts.metricsFile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(a.opts.metricsFile, a.reg); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// engine returns the engine chosen by flag or config.
func (a *app) engine() textsynth.Engine {
	return textsynth.LookupEngine(a.cfg.TextSynth.Engine)
}

func logHooks(logger *slog.Logger) textsynth.Hooks {
	return textsynth.Hooks{
		OnRequestStart: func(ctx context.Context, info textsynth.RequestInfo) context.Context {
			logger.DebugContext(ctx, "request started",
				"operation", info.Operation,
				"endpoint", info.Endpoint,
				"stream", info.Stream,
				"request_id", info.RequestID,
			)
			return ctx
		},
		OnRequestEnd: func(ctx context.Context, info textsynth.ResponseInfo) {
			attrs := []any{
				"operation", info.Operation,
				"status", info.StatusCode,
				"duration", info.Duration,
				"request_id", info.RequestID,
			}
			if info.Err != nil {
				attrs = append(attrs, "error_type", info.ErrorType, "error", info.Err)
			}
			logger.DebugContext(ctx, "request finished", attrs...)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// textArg joins positional args, or reads stdin when there are none or the
// only one is "-".
func textArg(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return strings.TrimRight(string(b), "\n"), nil
	}
	return strings.Join(args, " "), nil
}
