package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		" error ": zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewJSONConsole(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(WithLevel("info"), WithConsoleWriter(&buf), WithJSONFormat(true))
	require.NoError(t, err)

	l.Debug("hidden")
	l.Info("keyword found", zap.String("path", "/tmp/x"))
	require.NoError(t, l.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "keyword found", entry["msg"])
	assert.Equal(t, "/tmp/x", entry["path"])
	assert.Equal(t, "info", entry["level"])
}

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.log")
	l, err := New(WithConsoleOutput(false), WithFileOutput(path))
	require.NoError(t, err)

	l.Warn("search error absorbed", zap.String("path", "/x"))
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"search error absorbed"`)
	assert.Contains(t, string(data), `"level":"warn"`)
}

func TestNewWithoutOutputs(t *testing.T) {
	_, err := New(WithConsoleOutput(false))
	assert.Error(t, err)
}

func TestGlobalLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := InitWithOptions(WithLevel("debug"), WithConsoleWriter(&buf), WithJSONFormat(true))
	require.NoError(t, err)
	assert.Same(t, l, Get())

	Debug("via package helper")
	require.NoError(t, Sync())
	assert.Contains(t, buf.String(), "via package helper")
}
