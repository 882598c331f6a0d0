package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelInfo, parseLevel("nonsense"))
}

func TestSetupWritesRotatedFile(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	path := filepath.Join(t.TempDir(), "logs", "obsync.log")
	cleanup, err := Setup(Config{Level: "debug", FilePath: path})
	require.NoError(t, err)

	slog.Debug("stream connected", "endpoint", "ws://localhost/live")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "stream connected")
	assert.Contains(t, string(data), "ws://localhost/live")
}

func TestSetupDefaultsToStderr(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	cleanup, err := Setup(Config{Level: "info"})
	require.NoError(t, err)
	require.NoError(t, cleanup())
}
