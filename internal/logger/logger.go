package logger

import (
	"os"

	"github.com/rs/zerolog"

	"tournament-engine/internal/config"
)

// New builds the service logger at the configured LOG_LEVEL.
func New(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return SetLevel(level)
}

func SetLevel(level zerolog.Level) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Caller().
		Str("service", "tournament-engine").
		Logger()

	logger = logger.Level(level)

	return logger
}
