package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fzdarsky/quietplanet/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEntry(t *testing.T, line string) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	return entry
}

func TestLogger_JSONFormat(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := logging.New(logging.LevelInfo, logging.FormatJSON)
	logger.SetOutput(&stdout, &stderr)

	logger.Info("test message", map[string]any{
		"foo": "bar",
		"num": 42,
	})

	entry := decodeEntry(t, stdout.String())
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "test message", entry["message"])
	assert.NotEmpty(t, entry["timestamp"])

	fields, ok := entry["fields"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "bar", fields["foo"])
	assert.Equal(t, float64(42), fields["num"])
	assert.Empty(t, stderr.String())
}

func TestLogger_HumanFormat_SortedFields(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := logging.New(logging.LevelInfo, logging.FormatHuman)
	logger.SetOutput(&stdout, &stderr)

	logger.Info("test message", map[string]any{"zeta": 1, "alpha": 2})

	output := stdout.String()
	assert.Contains(t, output, "info: test message")
	assert.Less(t, strings.Index(output, "alpha=2"), strings.Index(output, "zeta=1"))
	assert.True(t, strings.HasSuffix(output, "\n"))
}

func TestLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name      string
		logLevel  logging.LogLevel
		logFunc   func(*logging.Logger)
		shouldLog bool
	}{
		{name: "debug logged when level is debug", logLevel: logging.LevelDebug, logFunc: func(l *logging.Logger) { l.Debug("test") }, shouldLog: true},
		{name: "debug not logged when level is info", logLevel: logging.LevelInfo, logFunc: func(l *logging.Logger) { l.Debug("test") }, shouldLog: false},
		{name: "info not logged when level is warn", logLevel: logging.LevelWarn, logFunc: func(l *logging.Logger) { l.Info("test") }, shouldLog: false},
		{name: "warn logged when level is warn", logLevel: logging.LevelWarn, logFunc: func(l *logging.Logger) { l.Warn("test") }, shouldLog: true},
		{name: "error logged when level is error", logLevel: logging.LevelError, logFunc: func(l *logging.Logger) { l.Error("test") }, shouldLog: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			logger := logging.New(tt.logLevel, logging.FormatJSON)
			logger.SetOutput(&stdout, &stderr)

			tt.logFunc(logger)

			logged := stdout.Len()+stderr.Len() > 0
			assert.Equal(t, tt.shouldLog, logged)
		})
	}
}

func TestLogger_ErrorsGoToStderr(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := logging.New(logging.LevelDebug, logging.FormatJSON)
	logger.SetOutput(&stdout, &stderr)

	logger.Error("boom")

	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "boom")
}

func TestLogger_RedactsSRPValues(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := logging.New(logging.LevelInfo, logging.FormatJSON)
	logger.SetOutput(&stdout, &stderr)

	logger.Info("login", map[string]any{
		"username": "alice",
		"A":        "12345",
		"M1":       "67890",
		"salt":     "42",
		"token":    "eyJ...",
		"nested":   map[string]any{"verifier": "99", "ok": true},
	})

	fields := decodeEntry(t, stdout.String())["fields"].(map[string]any)
	assert.Equal(t, "alice", fields["username"])
	assert.Equal(t, "[REDACTED]", fields["A"])
	assert.Equal(t, "[REDACTED]", fields["M1"])
	assert.Equal(t, "[REDACTED]", fields["salt"])
	assert.Equal(t, "[REDACTED]", fields["token"])

	nested := fields["nested"].(map[string]any)
	assert.Equal(t, "[REDACTED]", nested["verifier"])
	assert.Equal(t, true, nested["ok"])
	assert.NotContains(t, stdout.String(), "67890")
}

func TestRedactor_CustomKeys(t *testing.T) {
	r := logging.NewRedactor()
	r.AddSensitiveKey("Attempt_ID")

	out := r.RedactFields(map[string]any{"attempt_id": "x", "username": "alice"})
	assert.Equal(t, "[REDACTED]", out["attempt_id"])
	assert.Equal(t, "alice", out["username"])
	assert.Nil(t, r.RedactFields(nil))
}

func TestLogger_ContextRequestID(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := logging.New(logging.LevelInfo, logging.FormatJSON)
	logger.SetOutput(&stdout, &stderr)

	ctx := logging.WithRequestID(context.Background(), "req-1")
	logger.InfoContext(ctx, "with id")

	fields := decodeEntry(t, stdout.String())["fields"].(map[string]any)
	assert.Equal(t, "req-1", fields["request_id"])

	id, ok := logging.RequestIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-1", id)

	_, ok = logging.RequestIDFromContext(context.Background())
	assert.False(t, ok)
}

func TestLogger_WithFields(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := logging.New(logging.LevelInfo, logging.FormatJSON)
	logger.SetOutput(&stdout, &stderr)

	logger.WithFields(map[string]any{"component": "auth"}).Warn("slow", map[string]any{"ms": 12})

	entry := decodeEntry(t, stdout.String())
	assert.Equal(t, "warn", entry["level"])
	fields := entry["fields"].(map[string]any)
	assert.Equal(t, "auth", fields["component"])
	assert.Equal(t, float64(12), fields["ms"])
}

func TestParseLevelAndFormat(t *testing.T) {
	level, err := logging.ParseLevel(" WARN ")
	require.NoError(t, err)
	assert.Equal(t, logging.LevelWarn, level)

	_, err = logging.ParseLevel("verbose")
	assert.Error(t, err)

	format, err := logging.ParseFormat("human")
	require.NoError(t, err)
	assert.Equal(t, logging.FormatHuman, format)

	_, err = logging.ParseFormat("xml")
	assert.Error(t, err)
}
