package logger

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud", Output: "stdout"})
	require.Error(t, err)
}

func TestFileOutputWritesStructuredLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := New(&Config{Level: "info", Format: "json", Output: path, Component: "listener"})
	require.NoError(t, err)

	l.Debug("hidden")
	l.With(String("asset", "BTCUSDT")).Warn("fetch failed",
		Float64("price", 101.5),
		Int64("tick_id", 7),
		Error(errors.New("timeout")),
	)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, "warn", got["level"])
	assert.Equal(t, "listener", got["component"])
	assert.Equal(t, "BTCUSDT", got["asset"])
	assert.Equal(t, 101.5, got["price"])
	assert.Equal(t, float64(7), got["tick_id"])
	assert.Equal(t, "timeout", got["error"])
	assert.Equal(t, "fetch failed", got["message"])
}

func TestNopDiscards(t *testing.T) {
	l := Nop()
	assert.NotPanics(t, func() {
		l.Info("x", String("k", "v"))
		l.Error("y", Error(nil))
	})
}
