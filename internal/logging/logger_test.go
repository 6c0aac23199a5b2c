package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func captureJSON(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	SetupWriter(&buf, "debug", "json")
	return &buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	return entry
}

func TestNewContext_CarriesFields(t *testing.T) {
	buf := captureJSON(t)

	ctx := NewContext(context.Background(), "consumer", "worker-1")
	ctx = NewContext(ctx, "batch", 3)
	FromContext(ctx).Info("batch received")

	entry := lastEntry(t, buf)
	if entry["consumer"] != "worker-1" {
		t.Errorf("consumer = %v, want worker-1", entry["consumer"])
	}
	if entry["batch"] != float64(3) {
		t.Errorf("batch = %v, want 3", entry["batch"])
	}
}

func TestFromContext_RequestID(t *testing.T) {
	buf := captureJSON(t)

	var handlerCtx context.Context
	h := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCtx = r.Context()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	WithFields(handlerCtx, "key", "uploaded/a.csv").Info("parse started")

	entry := lastEntry(t, buf)
	if id, _ := entry["request_id"].(string); id == "" {
		t.Error("request_id missing from entry")
	}
	if entry["key"] != "uploaded/a.csv" {
		t.Errorf("key = %v, want uploaded/a.csv", entry["key"])
	}
}

func TestFromContext_Default(t *testing.T) {
	buf := captureJSON(t)

	FromContext(context.Background()).Warn("plain")

	entry := lastEntry(t, buf)
	if _, ok := entry["request_id"]; ok {
		t.Error("request_id should be absent without middleware")
	}
	if entry["level"] != "WARN" {
		t.Errorf("level = %v, want WARN", entry["level"])
	}
}
