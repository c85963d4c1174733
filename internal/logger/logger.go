// Package logger provides the file-backed debug log shared by decomp components.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DebugLogger writes timestamped lines to a file. A nil logger, or one
// without a file, discards everything.
type DebugLogger struct {
	mu   sync.Mutex
	file *os.File
}

// New creates a logger writing to logPath. An empty path returns a no-op
// logger. Parent directories are created.
func New(logPath string) (*DebugLogger, error) {
	if logPath == "" {
		return &DebugLogger{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	l := &DebugLogger{file: f}
	l.Log("=== decomp debug log started at %s ===", time.Now().Format(time.RFC3339))
	return l, nil
}

// DefaultPath returns <root>/.decomp/logs/debug.log.
func DefaultPath(root string) string {
	return filepath.Join(root, ".decomp", "logs", "debug.log")
}

// ForProject creates a logger at DefaultPath(root), falling back to a
// no-op logger if the file cannot be opened.
func ForProject(root string) *DebugLogger {
	l, err := New(DefaultPath(root))
	if err != nil {
		return Nop()
	}
	return l
}

// Nop returns a logger that discards everything.
func Nop() *DebugLogger {
	return &DebugLogger{}
}

// Log writes a timestamped message.
func (l *DebugLogger) Log(format string, args ...interface{}) {
	if l == nil || l.file == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Fprintf(l.file, "[%s] %s\n", timestamp, msg)
	l.file.Sync()
}

// Func returns Log as a plain function for WithDebugLog and SetDebugLog hooks.
func (l *DebugLogger) Func() func(format string, args ...interface{}) {
	return l.Log
}

// Close closes the log file. Safe on a nil or no-op logger.
func (l *DebugLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
