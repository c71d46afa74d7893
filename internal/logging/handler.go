// Package logging builds the process slog.Logger: colorized lines for people
// at a terminal, JSON for everything else.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Options selects the level and output format.
type Options struct {
	// Level is debug, info, warn or error; empty means info
	Level string
	// Format is auto, text or json; empty means auto
	Format string
}

// ParseLevel maps a level name to its slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// New returns a logger writing to w. In auto mode the tint handler is used
// when w is a terminal and the JSON handler otherwise.
func New(w io.Writer, opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	var text bool
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "auto":
		text = isTerminal(w)
	case "text":
		text = true
	case "json":
		text = false
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	if text {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    !isTerminal(w),
		})), nil
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
