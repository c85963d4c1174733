package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesTimestampedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "debug.log")
	l, err := New(path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	l.Log("stage %d of %d", 1, 3)
	l.Func()("via hook: %s", "ok")
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	content := string(data)
	for _, want := range []string{"debug log started", "stage 1 of 3", "via hook: ok"} {
		if !strings.Contains(content, want) {
			t.Errorf("log missing %q:\n%s", want, content)
		}
	}
}

func TestNopAndNilLoggers(t *testing.T) {
	var nilLogger *DebugLogger
	nilLogger.Log("ignored")
	if err := nilLogger.Close(); err != nil {
		t.Errorf("nil Close returned %v", err)
	}

	Nop().Log("ignored")
	l, err := New("")
	if err != nil || l == nil {
		t.Fatalf("empty path should give a no-op logger, got %v", err)
	}
	l.Log("ignored")
}

func TestForProject(t *testing.T) {
	root := t.TempDir()
	l := ForProject(root)
	defer l.Close()
	l.Log("hello")

	if _, err := os.Stat(DefaultPath(root)); err != nil {
		t.Errorf("expected log at default path: %v", err)
	}
}
