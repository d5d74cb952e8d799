package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: WarnLevel, Format: TextFormat, Output: &buf})

	logger.Debug("hidden", nil)
	logger.Info("hidden", nil)
	logger.Warn("shown", nil)
	logger.Error("shown too", nil)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "shown too")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: InfoLevel, Format: JSONFormat, Output: &buf})
	logger.WithComponent("reader").Info("chunk consumed", map[string]interface{}{"bytes": 4096})

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "reader", entry.Component)
	assert.Equal(t, "chunk consumed", entry.Message)
	assert.EqualValues(t, 4096, entry.Fields["bytes"])
}

func TestWithFieldChaining(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: InfoLevel, Format: TextFormat, Output: &buf})
	derived := logger.WithField("stream", 7).WithField("source", "App")
	derived.Info("latched", nil)

	out := buf.String()
	assert.Contains(t, out, "stream=7")
	assert.Contains(t, out, "source=App")

	buf.Reset()
	logger.Info("plain", nil)
	assert.NotContains(t, buf.String(), "stream=7", "fields must not leak to the parent")
}

func TestParseLogLevel(t *testing.T) {
	lvl, err := ParseLogLevel("warning")
	require.NoError(t, err)
	assert.Equal(t, WarnLevel, lvl)

	_, err = ParseLogLevel("loud")
	assert.Error(t, err)
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: ErrorLevel, Format: TextFormat, Output: &buf})
	logger.Info("first", nil)
	logger.SetLevel(InfoLevel)
	logger.Info("second", nil)

	lines := strings.Count(buf.String(), "\n")
	assert.Equal(t, 1, lines)
	assert.Contains(t, buf.String(), "second")
}
