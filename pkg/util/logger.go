package util

import (
	"log/slog"
	"os"
	"path/filepath"
)

// NewLogger returns the process-wide logger. Development gets human-readable
// text at debug level with source locations; everything else gets JSON at
// info, which is what the log shipper expects.
func NewLogger(env string) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if env == "development" {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	// tag every record with the binary (server, worker, seed) so the
	// shared log stream stays readable
	return slog.New(handler).With("app", filepath.Base(os.Args[0]))
}
