package logutil

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	var b bytes.Buffer
	logger := NewLogger(&b, LevelTrace)
	logger.Log(context.Background(), LevelTrace, "hello", "model", "Qwen/Qwen3-4B")

	out := b.String()
	if !strings.Contains(out, "level=TRACE") {
		t.Errorf("expected TRACE level in %q", out)
	}

	if !strings.Contains(out, "source=logutil_test.go:") {
		t.Errorf("expected base name source in %q", out)
	}
}

func TestLevel(t *testing.T) {
	if got := Level(true); got != slog.LevelDebug {
		t.Errorf("Level(true) = %v", got)
	}

	if got := Level(false); got != slog.LevelInfo {
		t.Errorf("Level(false) = %v", got)
	}
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"truncated", 5, "trunc"},
		{"你好世界", 2, "你好"},
		{"", 3, ""},
	}

	for _, tt := range cases {
		if got := Truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
