package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"DEBUG", DEBUG},
		{"debug", DEBUG},
		{"INFO", INFO},
		{"WARN", WARN},
		{"warning", WARN},
		{"ERROR", ERROR},
		{"nonsense", INFO},
		{"", INFO},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoggerWritesFileAboveLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "test.log")
	l, err := New(Config{Level: WARN, FilePath: path, MaxSize: 1, MaxAge: 1, MaxBackups: 1})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	l.Info("hidden message")
	l.Warn("visible message", F("node", "gid-1"))
	l.WithFields(F("session", 7)).Error("failed message")
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "hidden message") {
		t.Errorf("expected INFO entry to be filtered, got %q", out)
	}
	for _, want := range []string{"visible message", "gid-1", "failed message", "session"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected log to contain %q, got %q", want, out)
		}
	}
}

func TestGlobalFunctionsBeforeInitAreNoops(t *testing.T) {
	// Must not panic with no global logger configured.
	Debug("x")
	Info("x")
	Warn("x")
	Error("x")
	WithFields(F("k", "v")).Info("x")
}
