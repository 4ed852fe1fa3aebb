package log

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"trace": LevelTrace,
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"bogus": slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestSetupLoggerConsoleSplit(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger, closers, err := setupLogger(&stdout, &stderr, "debug", "")
	require.NoError(t, err)
	assert.Empty(t, closers)

	logger.Debug("dbg line")
	logger.Info("info line")
	logger.Error("err line")
	logger.Log(t.Context(), LevelTrace, "trace line")

	assert.Contains(t, stdout.String(), "dbg line")
	assert.Contains(t, stdout.String(), "info line")
	assert.NotContains(t, stdout.String(), "err line")
	assert.NotContains(t, stdout.String(), "trace line")
	assert.Contains(t, stderr.String(), "err line")
	assert.NotContains(t, stderr.String(), "info line")
}

func TestSetupLoggerFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	path := filepath.Join(t.TempDir(), "padproxy.log")
	logger, closers, err := setupLogger(&stdout, &stderr, "info", path)
	require.NoError(t, err)
	require.Len(t, closers, 1)

	logger.Info("to file", "k", 1)
	logger.Debug("filtered")
	for _, c := range closers {
		require.NoError(t, c.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
	assert.NotContains(t, string(data), "filtered")
	assert.Contains(t, stderr.String(), "to file")
	assert.Empty(t, stdout.String())
}

func TestSetupLoggerBadFile(t *testing.T) {
	_, _, err := setupLogger(&bytes.Buffer{}, &bytes.Buffer{}, "info", filepath.Join(t.TempDir(), "missing", "x.log"))
	assert.Error(t, err)
}

func TestRawLogger(t *testing.T) {
	var buf bytes.Buffer
	r := NewRaw(&buf).(*rawLogger)
	r.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	r.Log(true, []byte{0x30, 0x00, 0xff})
	r.Log(false, []byte{0x01})
	r.Log(true, nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "2024/01/02 03:04:05.000 B->P 3 bytes: 30 00 ff", lines[0])
	assert.Equal(t, "2024/01/02 03:04:05.000 P->B 1 bytes: 01", lines[1])
}

func TestRawLoggerNil(t *testing.T) {
	assert.NotPanics(t, func() { NewRaw(nil).Log(true, []byte{1, 2, 3}) })
}
