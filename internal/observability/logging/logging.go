// Package logging builds the JSON slog logger each dehive service installs
// as the process default, tagged with the service name and environment so
// aggregated log streams stay attributable.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

type Config struct {
	ServiceName string
	Environment string
	// Level is one of debug, info, warn, error; anything else means info.
	Level string
}

func NewLogger(cfg Config) *slog.Logger {
	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.Level))

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	return slog.New(handler).With(
		slog.String("service", cfg.ServiceName),
		slog.String("env", cfg.Environment),
	)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
