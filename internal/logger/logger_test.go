package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"tournament-engine/internal/config"
)

func TestNewUsesConfiguredLevel(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"warn", zerolog.WarnLevel},
		{"debug", zerolog.DebugLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		l := New(&config.Config{LogLevel: tt.level})
		assert.Equal(t, tt.want, l.GetLevel(), tt.level)
	}
}
