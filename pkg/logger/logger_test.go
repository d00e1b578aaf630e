package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNew_WritesJSONToOutput verifies log lines land on the configured writer
// as JSON with the standard fields.
func TestNew_WritesJSONToOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Output: &buf})

	log.Info().Str("job_id", "abc").Msg("Job enqueued")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "abc", line["job_id"])
	assert.Equal(t, "Job enqueued", line["message"])
	assert.Contains(t, line, "time")
	assert.Contains(t, line, "caller")
}

// TestNew_LevelFiltering verifies entries below the configured level are
// suppressed.
func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})

	log.Info().Msg("dropped")
	log.Warn().Msg("kept")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

// TestNew_PrettyOutput verifies console mode writes human-readable lines to
// the same writer.
func TestNew_PrettyOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Pretty: true, Output: &buf})

	log.Info().Msg("Starting up")

	out := buf.String()
	assert.Contains(t, out, "Starting up")
	assert.False(t, json.Valid(buf.Bytes()))
}

// TestParseLevel covers the fallback for unknown level names.
func TestParseLevel(t *testing.T) {
	assert.Equal(t, "debug", parseLevel("debug").String())
	assert.Equal(t, "warn", parseLevel("warn").String())
	assert.Equal(t, "error", parseLevel("error").String())
	assert.Equal(t, "info", parseLevel("").String())
	assert.Equal(t, "info", parseLevel("verbose").String())
}
