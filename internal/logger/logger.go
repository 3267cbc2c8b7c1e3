package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"go-ai-chat/internal/config"
)

// New creates a zerolog.Logger configured for the chat service.
func New(cfg *config.Config) zerolog.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

func NewWithWriter(cfg *config.Config, out io.Writer) zerolog.Logger {
	var w io.Writer = out
	if cfg.LogFormat != "json" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Logger().
		Level(parseLevel(cfg.LogLevel))
}

func parseLevel(raw string) zerolog.Level {
	if raw == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(raw))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
