package bootstrap

import (
	"log/slog"
	"os"
)

// NewLogger returns a text logger for local development and a JSON logger
// everywhere else.
func NewLogger(env string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var h slog.Handler
	if env == "dev" || env == "" {
		opts.Level = slog.LevelDebug
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(h).With("service", "askpdf")
}
