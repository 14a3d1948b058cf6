package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("debug not logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Debug("debug message")
		assert.Zero(t, buf.Len())
	})

	t.Run("info logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Info("info message")
		entry := decodeEntry(t, &buf)
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "info message", entry["msg"])
	})

	t.Run("warn and error logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Warnf("warn %d", 1)
		assert.Equal(t, "warn 1", decodeEntry(t, &buf)["msg"])

		buf.Reset()
		logger.Errorf("error %s", "two")
		assert.Equal(t, "ERROR", decodeEntry(t, &buf)["level"])
	})
}

func TestLogger_FormattedLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)

	tests := []struct {
		name  string
		log   func(format string, args ...interface{})
		level string
	}{
		{"debugf", logger.Debugf, "DEBUG"},
		{"infof", logger.Infof, "INFO"},
		{"warnf", logger.Warnf, "WARN"},
		{"errorf", logger.Errorf, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.log("role %d has %s", 7, "no permissions")
			entry := decodeEntry(t, &buf)
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, "role 7 has no permissions", entry["msg"])
		})
	}
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf).Component("engine")

	logger.WithFields(map[string]interface{}{"role_id": 7, "op": "delete_role"}).
		WithError(errors.New("boom")).
		Debug("failed")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "engine", entry["component"])
	assert.Equal(t, float64(7), entry["role_id"])
	assert.Equal(t, "delete_role", entry["op"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLogger_WithNilError(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})
	assert.Same(t, logger, logger.WithError(nil))
}

func TestNopLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		NopLogger().WithField("a", 1).Error("discarded")
		OrNop(nil).Info("discarded")
	})
	l := NewLogger(InfoLevel, &bytes.Buffer{})
	assert.Same(t, l, OrNop(l))
}

func TestContextHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	ctx := WithRequestID(context.Background(), "req-123")
	assert.Equal(t, "req-123", GetRequestID(ctx))
	assert.Empty(t, GetRequestID(context.Background()))

	ctx = WithLogger(ctx, logger)
	FromContext(ctx).Info("tagged")
	assert.Equal(t, "req-123", decodeEntry(t, &buf)["request_id"])

	assert.NotPanics(t, func() { FromContext(context.Background()).Info("nothing") })
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", DebugLevel},
		{" INFO ", InfoLevel},
		{"warn", WarnLevel},
		{"warning", WarnLevel},
		{"error", ErrorLevel},
		{"verbose", InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLogLevel(tt.in), tt.in)
	}
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", DebugLevel.String())
	assert.Equal(t, "ERROR", ErrorLevel.String())
	assert.Equal(t, "OFF", (ErrorLevel + 1).String())
	assert.Equal(t, "OFF", LogLevel(-1).String())
}

func TestRecoverPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	func() {
		defer RecoverPanic(logger, "worker")
		panic("kaboom")
	}()

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "PANIC recovered", entry["msg"])
	assert.Equal(t, "kaboom", entry["panic"])
	assert.Equal(t, "worker", entry["context"])
	assert.NotEmpty(t, entry["stack"])
}

func TestMustRecover(t *testing.T) {
	assert.NoError(t, MustRecover(nil))
	assert.EqualError(t, MustRecover("bad"), "panic: bad")
}
