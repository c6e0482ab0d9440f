// Package logger builds the process-wide zerolog.Logger.
package logger

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/cacheforge/semcache/config"
)

// New returns a configured zerolog.Logger: pretty console output in
// development, structured JSON in production.
func New(cfg *config.Config) zerolog.Logger {
	lvl := zerolog.InfoLevel
	if cfg.IsDevelopment() {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if cfg.IsDevelopment() {
		out := zerolog.ConsoleWriter{Out: os.Stderr}
		return zerolog.New(out).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Str("service", "semantic_cache").Logger()
}
