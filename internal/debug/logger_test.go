package debug

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigureWritesAtLevel(t *testing.T) {
	var buf bytes.Buffer
	Configure(Options{Enabled: true, Level: "info", Output: &buf})
	defer Init(false)

	Debug("hidden")
	Info("visible", "table", "users")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
	assert.Contains(t, out, "table=users")
	assert.True(t, Enabled())
}

func TestConfigureJSON(t *testing.T) {
	var buf bytes.Buffer
	Configure(Options{Enabled: true, Format: "json", Output: &buf})
	defer Init(false)

	With("tx_id", "abc").Debug("begin")
	assert.Contains(t, buf.String(), `"tx_id":"abc"`)
}

func TestDisabledDiscards(t *testing.T) {
	var buf bytes.Buffer
	Configure(Options{Enabled: false, Output: &buf})

	Error("nope")
	assert.Empty(t, buf.String())
	assert.False(t, Enabled())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelDebug, ParseLevel(""))
}
