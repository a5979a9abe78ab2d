package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_WritesKeyValueFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", ServiceName: "scrims-service", Output: &buf})

	log.With("component", "scheduler").Info("fire failed",
		"scrims_id", "abc",
		"error", errors.New("channel missing"),
	)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "fire failed", entry["msg"])
	assert.Equal(t, "scrims-service", entry["service"])
	assert.Equal(t, "scheduler", entry["component"])
	assert.Equal(t, "abc", entry["scrims_id"])
	assert.Equal(t, "channel missing", entry["error"])
}

func TestLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})

	log.Info("hidden")
	assert.Zero(t, buf.Len())

	log.Warn("shown")
	assert.NotZero(t, buf.Len())
}

func TestConvertFields_DropsDanglingKey(t *testing.T) {
	fields := convertFields("a", 1, "dangling")
	assert.Len(t, fields, 1)
}
