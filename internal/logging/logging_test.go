package logging

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"INFO", slog.LevelInfo},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, "level %q", tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestSetupRejectsBadLevel(t *testing.T) {
	err := Setup(Config{Level: "nope", Format: "text", Output: "stderr"})
	assert.Error(t, err)
}

func TestWithComponent(t *testing.T) {
	require.NoError(t, Setup(DefaultConfig()))
	log := WithComponent("poller")
	assert.NotNil(t, log)
}
