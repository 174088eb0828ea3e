// Package logging builds the structured logger shared by the commands.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/skypro1111/emotibit-sync/internal/config"
)

// New creates and configures the structured logger based on configuration.
// The returned closer releases a log file opened for cfg.Output.
func New(cfg config.LoggingConfig) (*slog.Logger, io.Closer) {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.Level == "debug",
	}

	var (
		output io.Writer
		closer io.Closer = nopCloser{}
	)
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Anything else is a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
		} else {
			output = file
			closer = file
		}
	}

	return slog.New(NewHandler(output, cfg.Format, opts)), closer
}

// NewHandler returns a JSON or text handler writing to w.
func NewHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// ParseLevel maps a configured level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
