// Package logging provides the default structured logger for provshare.
// Applications can inject their own slog.Logger through the client Config;
// this one is used when they don't.
package logging

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// New returns a colorized stderr logger at the given level.
func New(level slog.Level) *slog.Logger {
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	})
	return slog.New(handler)
}

// Default returns an Info-level logger.
func Default() *slog.Logger {
	return New(slog.LevelInfo)
}
