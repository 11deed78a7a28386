package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Empty(t, cfg.LedgerURL)
	assert.Equal(t, 2*time.Second, cfg.LockWait)
	assert.Equal(t, int64(500), cfg.DefaultDailyXPCap)
	assert.Equal(t, []int64{100, 110, 120, 135, 150}, cfg.DefaultStreakBonus)
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("LEDGER_URL", "http://ledger:9000")
	t.Setenv("LEDGER_RETRY_BASE", "250ms")
	t.Setenv("DEFAULT_STREAK_BONUS", "100,200")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "http://ledger:9000", cfg.LedgerURL)
	assert.Equal(t, 250*time.Millisecond, cfg.LedgerRetryBase)
	assert.Equal(t, []int64{100, 200}, cfg.DefaultStreakBonus)
}

func TestParseRejectsBonusBelowParity(t *testing.T) {
	t.Setenv("DEFAULT_STREAK_BONUS", "100,90")
	_, err := Parse()
	require.Error(t, err)
}

func TestParseRejectsUnknownLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "loud")
	_, err := Parse()
	require.Error(t, err)
}

func TestLoadReadsLogLevelFromDotenv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LOG_LEVEL=warn\n"), 0o600))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("LOG_LEVEL", "")
	require.NoError(t, os.Unsetenv("LOG_LEVEL"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}
