package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	for _, env := range []string{"prod", "local", "dev", "docker", "test"} {
		l, err := NewLogger(env)
		if err != nil || l == nil {
			t.Errorf("NewLogger(%q) = %v, %v", env, l, err)
		}
	}
	if _, err := NewLogger("staging"); err == nil {
		t.Error("expected error for unknown env")
	}
	if _, err := NewLogger("dev", "loud"); err == nil {
		t.Error("expected error for invalid level")
	}
	if l, err := NewLogger("prod", "debug"); err != nil || !l.Core().Enabled(zap.DebugLevel) {
		t.Errorf("level override not applied: %v", err)
	}
}

func TestForSession(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ForSession(zap.New(core), "s1", "physics").Info("opened")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["session_id"] != "s1" || fields["repo"] != "physics" {
		t.Errorf("fields = %v", fields)
	}
	if ForSession(nil, "s", "r") == nil {
		t.Error("nil base should fall back to a no-op logger")
	}
}

func TestContextRoundTrip(t *testing.T) {
	l := zap.NewExample()
	if FromContext(ContextWithLogger(context.Background(), l)) != l {
		t.Error("logger not carried by context")
	}
	if FromContext(context.Background()) == nil {
		t.Error("FromContext should never return nil")
	}
}

func TestFromContextOr(t *testing.T) {
	fallback := zap.NewExample()
	if FromContextOr(context.Background(), fallback) != fallback {
		t.Error("expected fallback logger")
	}
	l := zap.NewExample()
	if FromContextOr(ContextWithLogger(context.Background(), l), fallback) != l {
		t.Error("context logger should win over fallback")
	}
}
