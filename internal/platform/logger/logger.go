package logger

import (
	"log/slog"
	"os"
)

// New returns the structured logger services log through. JSON output so log
// collectors can index the audit attributes.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
