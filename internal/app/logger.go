package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the application logger. Production always emits JSON and
// skips source annotations; development defaults to readable text with
// source locations, switchable to JSON via LOG_FORMAT.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: !cfg.IsProduction()}
	if cfg.IsProduction() || (cfg != nil && cfg.LogFormat == "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
