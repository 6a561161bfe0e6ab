package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := defaultLogger.out
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(prev) })
	return &buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestInfoEmitsStructuredJSON(t *testing.T) {
	buf := captureOutput(t)

	Info("fetch complete", "accounts", 12, "tweets", 87)

	entry := lastEntry(t, buf)
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "fetch complete", entry["msg"])
	assert.Equal(t, "12", entry["accounts"])
	assert.Equal(t, "87", entry["tweets"])
}

func TestDebugDroppedBelowLevel(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(INFO)

	Debug("noise")

	assert.Zero(t, buf.Len())
}

func TestEmailFieldsAreRedacted(t *testing.T) {
	buf := captureOutput(t)

	Info("digest sent", "recipient_email", "jane.doe@example.com")

	entry := lastEntry(t, buf)
	assert.Equal(t, "ja***@example.com", entry["recipient_email"])
}

func TestEmbeddedEmailsAreRedacted(t *testing.T) {
	buf := captureOutput(t)

	Warn("delivery failed", "reason", "mailbox full for bob@example.org")

	entry := lastEntry(t, buf)
	assert.Contains(t, entry["reason"], "***@example.org")
	assert.NotContains(t, entry["reason"], "bob@")
}

func TestTokenFieldsAreRedacted(t *testing.T) {
	buf := captureOutput(t)

	Info("subscriber: created pending", "token", "deadbeefcafe0123")

	entry := lastEntry(t, buf)
	assert.Equal(t, "dead****", entry["token"])
}

func TestRunScopedLoggerCarriesRunAndStage(t *testing.T) {
	buf := captureOutput(t)

	log := ForRun("20260824-abc123").WithStage("classification")
	log.Info("workers started", "count", 10)

	entry := lastEntry(t, buf)
	assert.Equal(t, "20260824-abc123", entry["run_id"])
	assert.Equal(t, "classification", entry["stage"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("Warning"))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel("bogus"))
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "ja***@example.com", RedactEmail("jane@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
}

func TestRedactToken(t *testing.T) {
	assert.Equal(t, "dead****", RedactToken("deadbeefcafe"))
	assert.Equal(t, "****", RedactToken("ab"))
}
