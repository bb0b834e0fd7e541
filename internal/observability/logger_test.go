package observability

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLoggerLevelMapping(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name         string
		level        string
		debugEnabled bool
	}{
		{name: "debug level", level: "debug", debugEnabled: true},
		{name: "info level", level: "info", debugEnabled: false},
		{name: "upper case warn", level: " WARN ", debugEnabled: false},
		{name: "empty level defaults to info", level: "", debugEnabled: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			logger, err := NewLogger(tc.level, "worker")
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}

			if got := logger.Core().Enabled(zapcore.DebugLevel); got != tc.debugEnabled {
				t.Fatalf("debug enabled = %v, want %v", got, tc.debugEnabled)
			}
		})
	}
}

func TestNewLoggerInvalidLevel(t *testing.T) {
	t.Parallel()

	logger, err := NewLogger("loud", "api")
	if err == nil {
		t.Fatal("NewLogger() expected error for invalid level")
	}
	if logger != nil {
		t.Fatal("NewLogger() returned a logger alongside an error")
	}
}

func TestRequestIDContextHelpers(t *testing.T) {
	t.Parallel()

	if _, ok := RequestIDFromContext(context.Background()); ok {
		t.Fatal("RequestIDFromContext() found an id in an empty context")
	}

	ctx := WithRequestID(context.Background(), "req-123")
	requestID, ok := RequestIDFromContext(ctx)
	if !ok || requestID != "req-123" {
		t.Fatalf("RequestIDFromContext() = %q, %v; want req-123, true", requestID, ok)
	}

	if _, ok := RequestIDFromContext(WithRequestID(context.Background(), "")); ok {
		t.Fatal("RequestIDFromContext() accepted an empty id")
	}
}

func TestLoggerFromContext(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	LoggerFromContext(WithRequestID(context.Background(), "req-789"), base).Info("with id")
	LoggerFromContext(context.Background(), base).Info("without id")

	entries := recorded.All()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if got := entries[0].ContextMap()["requestId"]; got != "req-789" {
		t.Fatalf("requestId = %v, want %q", got, "req-789")
	}
	if _, ok := entries[1].ContextMap()["requestId"]; ok {
		t.Fatal("requestId present on entry without one in context")
	}

	if LoggerFromContext(context.Background(), nil) != nil {
		t.Fatal("LoggerFromContext(nil logger) should return nil")
	}
}
