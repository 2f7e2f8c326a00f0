package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&Config{Level: LevelDebug, ServiceName: "test", JSONFormat: true, Output: &buf})

	log.With(F("bot_id", "b1")).Info("joined", F("attempt", 2), Err(errors.New("boom")))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "joined", entry["message"])
	assert.Equal(t, "test", entry["service_name"])
	assert.Equal(t, "b1", entry["bot_id"])
	assert.Equal(t, float64(2), entry["attempt"])
	assert.Equal(t, "boom", entry["error"])
}

func TestNewLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&Config{Level: LevelWarn, JSONFormat: true, Output: &buf})

	log.Info("hidden")
	assert.Zero(t, buf.Len())

	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"info":    zerolog.InfoLevel,
		"garbage": zerolog.InfoLevel,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, ParseLevel(in))
		})
	}
}

func TestNopLogger(t *testing.T) {
	log := NewNopLogger()
	log.With(F("k", "v")).Error("ignored")
	assert.Equal(t, zerolog.Disabled, log.Zerolog().GetLevel())
}
