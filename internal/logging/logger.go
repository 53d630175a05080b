package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/ecsrollout/internal/config"
)

// NewLogger creates a structured zerolog.Logger writing to stdout. Console output is
// used when LOG_FORMAT=console, JSON lines otherwise.
func NewLogger(cfg *config.Config) zerolog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(w io.Writer, cfg *config.Config) zerolog.Logger {
	if cfg.LogFormat == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(w).With().Timestamp().Str("app", "ecsrollout")
	if cfg.Region != "" {
		ctx = ctx.Str("region", cfg.Region)
	}

	logger := ctx.Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	return logger.Level(level)
}

// WithRun returns a child logger carrying the fields that identify one invocation.
func WithRun(logger zerolog.Logger, runID, cluster, service, environment string) zerolog.Logger {
	return logger.With().
		Str("run_id", runID).
		Str("cluster", cluster).
		Str("service", service).
		Str("environment", environment).
		Logger()
}
