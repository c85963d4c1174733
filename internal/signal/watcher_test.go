package signal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherCreatesSignalsDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".decomp")
	w, err := NewWatcher(dir)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Close()

	if info, err := os.Stat(filepath.Join(dir, "signals")); err != nil || !info.IsDir() {
		t.Fatalf("signals directory not created: %v", err)
	}
	if w.ShouldStop() {
		t.Error("fresh watcher should not report stop")
	}
}

func TestWatcherDetectsStopFile(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Close()

	if err := SendStop(dir); err != nil {
		t.Fatalf("SendStop failed: %v", err)
	}
	if !w.ShouldStop() {
		t.Error("expected stop after stop file written")
	}

	w.Clear()
	if w.ShouldStop() {
		t.Error("expected no stop after Clear")
	}
}

func TestWatcherCancelsContext(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Close()

	ctx, cancel := w.WithCancel(context.Background())
	defer cancel()

	if err := w.SendStop(); err != nil {
		t.Fatalf("SendStop failed: %v", err)
	}

	// The fsnotify event normally cancels; polling covers platforms without it.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			t.Fatal("context was not cancelled by stop signal")
		case <-time.After(20 * time.Millisecond):
			w.ShouldStop()
		}
	}
}

func TestOnStopAfterStopRunsImmediately(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Close()

	_ = w.SendStop()
	w.ShouldStop()

	called := false
	w.OnStop(func() { called = true })
	if !called {
		t.Error("callback should run immediately after a stop")
	}
}

func TestWatcherCloseIdempotent(t *testing.T) {
	w, err := NewWatcher(t.TempDir())
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	w.Close()
	w.Close()
}
