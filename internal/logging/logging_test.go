package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanoutRespectsLevels(t *testing.T) {
	var debugBuf, warnBuf bytes.Buffer
	h := NewFanout(
		slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	logger := slog.New(h).With("component", "test").WithGroup("g")

	logger.Debug("quiet", "k", 1)
	logger.Warn("loud", "k", 2)

	assert.Contains(t, debugBuf.String(), "quiet")
	assert.Contains(t, debugBuf.String(), "loud")
	assert.Contains(t, debugBuf.String(), "component=test")
	assert.Contains(t, debugBuf.String(), "g.k=2")

	assert.NotContains(t, warnBuf.String(), "quiet")
	assert.Contains(t, warnBuf.String(), "loud")
}

func TestFanoutEnabled(t *testing.T) {
	var buf bytes.Buffer
	h := NewFanout(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelError}))
	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}

func TestSetupWritesJSONFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logFile := filepath.Join(t.TempDir(), "logs", "dirsync.log")
	var console bytes.Buffer

	closeLog, err := Setup(Options{Level: slog.LevelInfo, Console: &console, File: logFile})
	require.NoError(t, err)

	slog.Info("tracking dir", "dir", "/tmp/a")
	slog.Debug("hidden")
	require.NoError(t, closeLog())

	assert.Contains(t, console.String(), "tracking dir")
	assert.NotContains(t, console.String(), "hidden")

	raw, err := os.ReadFile(logFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "tracking dir", rec["msg"])
	assert.Equal(t, "/tmp/a", rec["dir"])
}
