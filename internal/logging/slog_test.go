package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func textLogger(t *testing.T) (*SlogLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	return New(&buf, "debug", "text"), &buf
}

func TestSlogLogger_AllLevels(t *testing.T) {
	log, buf := textLogger(t)
	ctx := context.Background()

	log.Debug(ctx, "session reattached", "session", "r1@g")
	log.Info(ctx, "request submitted", "files", 2)
	log.Warn(ctx, "late callback ignored", "task", "r1@g/file/1")
	log.Error(ctx, "transfer failed", "status", 502)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 records, got %d:\n%s", len(lines), buf.String())
	}

	want := [][]string{
		{"level=DEBUG", `msg="session reattached"`, "session=r1@g"},
		{"level=INFO", `msg="request submitted"`, "files=2"},
		{"level=WARN", `msg="late callback ignored"`, "task=r1@g/file/1"},
		{"level=ERROR", `msg="transfer failed"`, "status=502"},
	}
	for i, parts := range want {
		for _, p := range parts {
			if !strings.Contains(lines[i], p) {
				t.Fatalf("record %d: expected %s in %q", i, p, lines[i])
			}
		}
	}
}

func TestSlogLogger_WithIsInherited(t *testing.T) {
	log, buf := textLogger(t)

	child := log.With("module", "orchestrator").With("group", "g1")
	child.Info(context.TODO(), "resumed", "count", 3)

	out := buf.String()
	for _, s := range []string{"module=orchestrator", "group=g1", "count=3"} {
		if !strings.Contains(out, s) {
			t.Fatalf("expected %q in output, got:\n%s", s, out)
		}
	}

	buf.Reset()
	log.Info(context.TODO(), "parent")
	if strings.Contains(buf.String(), "module=") {
		t.Fatalf("child attributes leaked into parent: %s", buf.String())
	}
}

func TestNew_JSONFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn", "json")
	ctx := context.Background()

	log.Info(ctx, "hidden")
	log.Warn(ctx, "shown", "session", "r1@group")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info must be filtered at warn level:\n%s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"session":"r1@group"`) {
		t.Fatalf("expected json record, got:\n%s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestDiscard_DoesNotPanic(t *testing.T) {
	Discard().With("k", "v").Error(context.Background(), "dropped")
}
