package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(DEBUG)
	SetRedactPII(true)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(INFO)
	})
	return &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]string {
	t.Helper()
	var out []map[string]string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]string{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLog_RedactsEmailFields(t *testing.T) {
	buf := capture(t)

	Info("dispatched", "email", "john.doe@example.com", "note", "reply from jane@shop.io", "err", errors.New("boom"))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "jo***@example.com", lines[0]["email"])
	assert.Equal(t, "reply from ja***@shop.io", lines[0]["note"])
	assert.Equal(t, "boom", lines[0]["err"])
}

func TestLog_KeepsCountsUnderRecipientKeys(t *testing.T) {
	buf := capture(t)

	Info("delivery run started", "recipients", 3, "recipient", "ann@example.com", "email_count", 0)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "3", lines[0]["recipients"])
	assert.Equal(t, "an***@example.com", lines[0]["recipient"])
	assert.Equal(t, "0", lines[0]["email_count"])
}

func TestLog_LevelFilter(t *testing.T) {
	buf := capture(t)
	SetLevel(WARN)

	Info("hidden")
	Warn("shown")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["msg"])
}

func TestWith_AddsFields(t *testing.T) {
	buf := capture(t)

	log := With("component", "sending").With("campaign_id", "c-1")
	log.Error("run failed", "attempts", 3)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "sending", lines[0]["component"])
	assert.Equal(t, "c-1", lines[0]["campaign_id"])
	assert.Equal(t, "3", lines[0]["attempts"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("Warning"))
	assert.Equal(t, ERROR, ParseLevel("error"))
	assert.Equal(t, INFO, ParseLevel("bogus"))
}
