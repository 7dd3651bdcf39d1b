package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStart_ReturnsExitCodeAfterLogging(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	dir := t.TempDir()
	logPath := filepath.Join(dir, "bot.log")

	t.Setenv("DISCORD_TOKEN", "tok")
	t.Setenv("DISCORD_LOG_OUTPUT", "file")
	t.Setenv("DISCORD_LOG_FILE_PATH", logPath)
	t.Setenv("DISCORD_LOG_FORMAT", "json")
	// The session store cannot be opened, so the client fails after logging is up.
	t.Setenv("DISCORD_STORAGE_TYPE", "sqlite")
	t.Setenv("DISCORD_STORAGE_DSN", filepath.Join(dir, "missing", "sessions.db"))

	assert.Equal(t, 1, start())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Bot stopped")
}

func TestStart_MissingConfigFile(t *testing.T) {
	previous := *configFile
	t.Cleanup(func() { *configFile = previous })
	*configFile = filepath.Join(t.TempDir(), "nope.yaml")

	t.Setenv("DISCORD_TOKEN", "tok")
	assert.Equal(t, 1, start())
}
