package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/platinummonkey/agora/pkg/contextkeys"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to unmarshal log entry %q: %v", buf.String(), err)
	}
	return entry
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("debug not logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Debug("debug message")
		if buf.Len() > 0 {
			t.Error("Debug message should not be logged at Info level")
		}
	})

	t.Run("info logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Info("info message")

		entry := decodeEntry(t, &buf)
		if entry["level"] != "info" {
			t.Errorf("Expected level info, got %v", entry["level"])
		}
		if entry["msg"] != "info message" {
			t.Errorf("Expected message 'info message', got %v", entry["msg"])
		}
	})

	t.Run("formatted warn", func(t *testing.T) {
		buf.Reset()
		logger.Warnf("slow query took %dms", 250)

		entry := decodeEntry(t, &buf)
		if entry["msg"] != "slow query took 250ms" {
			t.Errorf("Unexpected message %v", entry["msg"])
		}
	})

	t.Run("error logged at error level", func(t *testing.T) {
		buf.Reset()
		NewLogger(ErrorLevel, &buf).Warn("suppressed")
		if buf.Len() > 0 {
			t.Error("Warn message should not be logged at Error level")
		}
	})
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithField("key", "value").
		WithFields(map[string]interface{}{"count": 2}).
		WithError(errors.New("boom")).
		Info("message")

	entry := decodeEntry(t, &buf)
	if entry["key"] != "value" {
		t.Errorf("Expected field 'key' to be 'value', got %v", entry["key"])
	}
	if entry["count"] != float64(2) {
		t.Errorf("Expected field 'count' to be 2, got %v", entry["count"])
	}
	if entry["error"] != "boom" {
		t.Errorf("Expected error field 'boom', got %v", entry["error"])
	}
}

func TestLogger_WithErrorNil(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})
	if logger.WithError(nil) != logger {
		t.Error("WithError(nil) should return the same logger")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		" warn ":  WarnLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
	}
	for in, want := range tests {
		got, err := ParseLogLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLogLevel(%q) = %v, %v, want %v", in, got, err, want)
		}
	}

	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Error("Expected an error for an unknown level")
	}

	var level LogLevel
	if err := level.UnmarshalText([]byte("loud")); err == nil {
		t.Error("UnmarshalText should reject unknown levels")
	}
}

func TestLogLevel_String(t *testing.T) {
	if WarnLevel.String() != "warn" {
		t.Errorf("Expected warn, got %s", WarnLevel)
	}
	if LogLevel(9).String() != "level(9)" {
		t.Errorf("Unexpected name %s", LogLevel(9))
	}
}

func TestLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(InfoLevel, &buf).WithComponent("audit").Info("started")

	entry := decodeEntry(t, &buf)
	if entry["component"] != "audit" {
		t.Errorf("Expected component audit, got %v", entry["component"])
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), NewLogger(InfoLevel, &buf))
	ctx = contextkeys.RequestID.With(ctx, "req-1")
	ctx = contextkeys.UserID.With(ctx, "42")

	FromContext(ctx).Info("hello")

	entry := decodeEntry(t, &buf)
	if entry["request_id"] != "req-1" {
		t.Errorf("Expected request_id req-1, got %v", entry["request_id"])
	}
	if entry["user_id"] != "42" {
		t.Errorf("Expected user_id 42, got %v", entry["user_id"])
	}
}
