package infra

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the process logger. Development gets a console writer at
// debug level; everything else writes JSON at info. LOG_LEVEL overrides the
// level in either case. Every line carries the service name.
func NewLogger(cfg *Config, service string) zerolog.Logger {
	var out io.Writer = os.Stdout
	if cfg.AppEnv == "development" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return newLogger(out, cfg.AppEnv, cfg.LogLevel, service)
}

func newLogger(out io.Writer, appEnv, level, service string) zerolog.Logger {
	lvl := zerolog.InfoLevel
	if appEnv == "development" {
		lvl = zerolog.DebugLevel
	}
	if level != "" {
		if parsed, err := zerolog.ParseLevel(level); err == nil {
			lvl = parsed
		}
	}
	ctx := zerolog.New(out).Level(lvl).With().Timestamp()
	if service != "" {
		ctx = ctx.Str("service", service)
	}
	return ctx.Logger()
}

// Logger is the logger type handed to provider clients.
type Logger = zerolog.Logger
