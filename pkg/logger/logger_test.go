package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn)

	l.Debug("hidden %d", 1)
	l.Info("hidden %d", 2)
	l.Warn("shown %d", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "shown 3", entry["message"])
	assert.Equal(t, "fhir-indexer", entry["component"])
}

func TestLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelError)
	l.Info("nothing")
	assert.Zero(t, buf.Len())

	l.SetLevel(LevelDebug)
	assert.Equal(t, LevelDebug, l.Level())
	l.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestLogger_None(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelNone)
	l.Error("dropped")
	assert.Zero(t, buf.Len())
	assert.Nil(t, Nop().DebugEvent())
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		" warn ":  LevelWarn,
		"error":   LevelError,
		"off":     LevelNone,
		"unknown": LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestLogger_Events(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelInfo)

	l.DebugEvent().Str("k", "v").Msg("hidden")
	l.InfoEvent().Str("resourceType", "Patient").Msg("loaded")
	l.WarnEvent().Int("n", 2).Msg("dropped")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "Patient", entry["resourceType"])
	assert.Equal(t, "info", entry["level"])
}
