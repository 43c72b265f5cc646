package utils

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesComponentField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOptions(&buf, "", "info").With("dispatch")
	logger.Printf("assigned issue %d", 42)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "dispatch", line["component"])
	assert.Equal(t, "assigned issue 42", line["message"])
	assert.Equal(t, "info", line["level"])
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOptions(&buf, "", "warn")
	logger.Printf("dropped")
	logger.Debugf("dropped")
	assert.Zero(t, buf.Len())

	logger.Warnf("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	assert.NotPanics(t, func() {
		logger.Printf("x")
		logger.Errorf("x")
		logger.Warnf("x")
		_ = logger.With("c")
	})
}
