package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ridemap/ridemap/internal/dispatcher"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	return entry
}

func TestDispatcherLogger_Debug(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))

	dl.Debug("handling event", "command", ":STATE:GET:", "args", 2)

	entry := decodeLine(t, &buf)
	if entry["level"] != "debug" {
		t.Errorf("expected level 'debug', got %v", entry["level"])
	}
	if entry["message"] != "handling event" {
		t.Errorf("expected message 'handling event', got %v", entry["message"])
	}
	if entry["command"] != ":STATE:GET:" {
		t.Errorf("expected command=':STATE:GET:', got %v", entry["command"])
	}
	if entry["args"] != float64(2) { // JSON numbers are float64
		t.Errorf("expected args=2, got %v", entry["args"])
	}
}

func TestDispatcherLogger_Info(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(zerolog.New(&buf))

	dl.Info("registered", "commands", 7)

	entry := decodeLine(t, &buf)
	if entry["level"] != "info" {
		t.Errorf("expected level 'info', got %v", entry["level"])
	}
}

func TestDispatcherLogger_Error(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(zerolog.New(&buf))

	dl.Error("event failed", "sessionId", "s1", "error", "boom")

	entry := decodeLine(t, &buf)
	if entry["level"] != "error" {
		t.Errorf("expected level 'error', got %v", entry["level"])
	}
	if entry["sessionId"] != "s1" {
		t.Errorf("expected sessionId='s1', got %v", entry["sessionId"])
	}
}

func TestDispatcherLogger_OddKeyValues(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(zerolog.New(&buf))

	dl.Info("dangling", "key")

	entry := decodeLine(t, &buf)
	if _, ok := entry["key"]; ok {
		t.Error("a key without a value should be dropped")
	}
}

func TestDispatcherLogger_ImplementsInterface(t *testing.T) {
	var _ dispatcher.Logger = NewDispatcherLogger(zerolog.Nop())
}

func TestDispatcherLogger_ErrorValue(t *testing.T) {
	var buf bytes.Buffer
	dl := NewDispatcherLogger(zerolog.New(&buf))

	dl.Error("buffered event failed", "error", errors.New("queue full"), 7, "seven")

	entry := decodeLine(t, &buf)
	if entry["error"] != "queue full" {
		t.Errorf("expected error='queue full', got %v", entry["error"])
	}
	if entry["7"] != "seven" {
		t.Errorf("expected non-string key to be stringified, got %v", entry)
	}
}
