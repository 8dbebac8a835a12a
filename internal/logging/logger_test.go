package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"usd-instancer/internal/config"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(Options{Format: "xml"})
	require.Error(t, err)
}

func TestJSONOutputToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "run.log")
	logger, err := New(Options{Level: "info", Format: "json", OutputPaths: []string{path}})
	require.NoError(t, err)

	logger.Info("converted", String(FieldRunID, "abc"), Int("instancers", 2))
	logger.Debug("hidden")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "converted", entry["msg"])
	assert.Equal(t, "abc", entry[FieldRunID])
	assert.EqualValues(t, 2, entry["instancers"])
	assert.Contains(t, entry, "ts")
}

func TestConsoleHandlerFormatsComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl, false, false))
	logger = NewComponentLogger(logger, "collect")

	logger.Warn("reference unresolved", Path("/World/a b"), Duration("took", 1500*time.Microsecond))

	line := buf.String()
	assert.Contains(t, line, " WARN collect: reference unresolved")
	assert.Contains(t, line, `path="/World/a b"`)
	assert.Contains(t, line, "took=2ms")
	assert.NotContains(t, line, "component=")
	assert.NotContains(t, line, "\x1b[")
}

func TestConsoleHandlerAddsSource(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newConsoleHandler(&buf, new(slog.LevelVar), true, false))
	logger.Info("located")

	assert.Contains(t, buf.String(), "located [logger_test.go:")
}

func TestConsoleHandlerColorsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newConsoleHandler(&buf, new(slog.LevelVar), false, true))
	logger.Error("boom")
	assert.Contains(t, buf.String(), "\x1b[")
}

func TestConsoleHandlerGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newConsoleHandler(&buf, new(slog.LevelVar), false, false))
	logger.WithGroup("texture").Info("done", Int("new", 3))
	assert.Contains(t, buf.String(), "texture.new=3")
}

func TestNewFromConfigQuietRaisesLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.log")
	logger, err := NewFromConfig(config.Log{Level: "debug", Format: "json", File: path}, true)
	require.NoError(t, err)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))
}

func TestNopAndErrorHelpers(t *testing.T) {
	NewNop().Error("nothing")
	assert.Equal(t, "<nil>", Error(nil).Value.String())
	assert.Len(t, Args(String("a", "b"), Bool("c", true)), 2)
	assert.NotNil(t, NewComponentLogger(nil, "emit"))
}
