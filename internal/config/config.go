package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

type Config struct {
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	DBPath     string `env:"DB_PATH" envDefault:"tournaments.db"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	// Empty LedgerURL selects the in-process ledger.
	LedgerURL        string        `env:"LEDGER_URL"`
	LedgerAPIKey     string        `env:"LEDGER_API_KEY"`
	LedgerMaxRetries uint64        `env:"LEDGER_MAX_RETRIES" envDefault:"4"`
	LedgerRetryBase  time.Duration `env:"LEDGER_RETRY_BASE" envDefault:"100ms"`

	LockWait          time.Duration `env:"LOCK_WAIT" envDefault:"2s"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"30s"`

	DefaultDailyXPCap  int64   `env:"DEFAULT_DAILY_XP_CAP" envDefault:"500"`
	DefaultStreakBonus []int64 `env:"DEFAULT_STREAK_BONUS" envDefault:"100,110,120,135,150" envSeparator:","`
	XPParticipation    int64   `env:"XP_PARTICIPATION" envDefault:"10"`
	XPVictory          int64   `env:"XP_VICTORY" envDefault:"15"`

	dotenvMissing bool
}

// Load reads .env when present and then the environment. It runs before the
// logger exists, since LOG_LEVEL is part of the configuration.
func Load() (*Config, error) {
	dotenvErr := godotenv.Load()

	cfg, err := Parse()
	if err != nil {
		return nil, err
	}
	cfg.dotenvMissing = dotenvErr != nil
	return cfg, nil
}

// Report logs the loaded configuration.
func Report(cfg *Config, logger zerolog.Logger) {
	if cfg.dotenvMissing {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Bool("remote_ledger", cfg.LedgerURL != "").
		Dur("lock_wait", cfg.LockWait).
		Dur("reconcile_interval", cfg.ReconcileInterval).
		Msg("configuration loaded")
}

// Parse reads the configuration from the environment alone.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL %q is not a log level", c.LogLevel)
	}
	if c.DefaultDailyXPCap < 0 {
		return fmt.Errorf("DEFAULT_DAILY_XP_CAP must not be negative")
	}
	if c.XPParticipation < 0 || c.XPVictory < 0 {
		return fmt.Errorf("XP_PARTICIPATION and XP_VICTORY must not be negative")
	}
	for _, pct := range c.DefaultStreakBonus {
		if pct < 100 {
			return fmt.Errorf("DEFAULT_STREAK_BONUS entries are percentages and must be at least 100, got %d", pct)
		}
	}
	if c.ReconcileInterval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must be positive")
	}
	return nil
}
