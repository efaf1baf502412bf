package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	for _, cfg := range []Config{
		{Level: "debug", Format: "console"},
		{Level: "info", Format: "json"},
		{Level: "warn", Format: "console"},
	} {
		log, err := New(&cfg)
		require.NoError(t, err)

		level, err := zapcore.ParseLevel(cfg.Level)
		require.NoError(t, err)
		require.True(t, log.Core().Enabled(level))
		require.False(t, log.Core().Enabled(level-1))
	}

	_, err := New(&Config{Level: "loud"})
	require.Error(t, err)
}
