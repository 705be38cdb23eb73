package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetSilentMode(true) })
	return &buf
}

func lines(buf *bytes.Buffer) []map[string]interface{} {
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err == nil {
			out = append(out, entry)
		}
	}
	return out
}

func TestGetLogger(t *testing.T) {
	buf := captureOutput(t)

	log := GetLogger("manager")
	log.Info().Str("device_id", "roku-X1").Msg("Device added")

	entries := lines(buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "manager", entries[0]["component"])
	assert.Equal(t, "roku-X1", entries[0]["device_id"])
	assert.Equal(t, "Device added", entries[0]["message"])
	assert.Equal(t, "info", entries[0]["level"])
	assert.Contains(t, entries[0], "time")
}

func TestSetLevel(t *testing.T) {
	buf := captureOutput(t)
	defer SetLevel(LOG_INFO)

	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{LOG_DEBUG, zerolog.DebugLevel},
		{LOG_INFO, zerolog.InfoLevel},
		{LOG_WARN, zerolog.WarnLevel},
		{LOG_ERROR, zerolog.ErrorLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		SetLevel(tt.level)
		assert.Equal(t, tt.want, zerolog.GlobalLevel(), tt.level)
	}

	SetLevel(LOG_WARN)
	Debug("hidden")
	Info("hidden")
	Warn("shown")
	Error(errors.New("boom"), "shown")

	entries := lines(buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "warn", entries[0]["level"])
	assert.Equal(t, "error", entries[1]["level"])
	assert.Equal(t, "boom", entries[1]["error"])
}
