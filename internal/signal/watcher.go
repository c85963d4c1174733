// Package signal watches the project directory for control files that stop a run.
package signal

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// StopFile is the file name that requests a stop.
const StopFile = "stop"

// Watcher reports stop requests written to <dir>/signals/stop.
type Watcher struct {
	signalsDir string

	mu         sync.RWMutex
	stopSignal bool
	onStop     []func()

	watcher   *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once
}

// NewWatcher creates a Watcher for stateDir (usually .decomp). The signals
// directory is created if missing. If fsnotify is unavailable the watcher
// falls back to checking the file on each ShouldStop call.
func NewWatcher(stateDir string) (*Watcher, error) {
	signalsDir := filepath.Join(stateDir, "signals")
	if err := os.MkdirAll(signalsDir, 0755); err != nil {
		return nil, err
	}

	w := &Watcher{
		signalsDir: signalsDir,
		done:       make(chan struct{}),
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return w, nil
	}
	if err := fw.Add(signalsDir); err != nil {
		fw.Close()
		return w, nil
	}
	w.watcher = fw

	go w.watch()
	return w, nil
}

func (w *Watcher) watch() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) == StopFile && event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.trigger()
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) trigger() {
	w.mu.Lock()
	if w.stopSignal {
		w.mu.Unlock()
		return
	}
	w.stopSignal = true
	callbacks := append([]func(){}, w.onStop...)
	w.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// OnStop registers fn to run once when a stop is requested. If a stop was
// already seen, fn runs immediately.
func (w *Watcher) OnStop(fn func()) {
	w.mu.Lock()
	if w.stopSignal {
		w.mu.Unlock()
		fn()
		return
	}
	w.onStop = append(w.onStop, fn)
	w.mu.Unlock()
}

// WithCancel returns a context that is cancelled when a stop is requested.
func (w *Watcher) WithCancel(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	w.OnStop(cancel)
	return ctx, cancel
}

// ShouldStop reports whether a stop has been requested.
func (w *Watcher) ShouldStop() bool {
	// Also check the file directly in case the watcher missed it.
	if _, err := os.Stat(filepath.Join(w.signalsDir, StopFile)); err == nil {
		w.trigger()
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stopSignal
}

// SendStop creates the stop file.
func (w *Watcher) SendStop() error {
	return SendStop(filepath.Dir(w.signalsDir))
}

// SendStop creates the stop file under stateDir without a running watcher.
func SendStop(stateDir string) error {
	dir := filepath.Join(stateDir, "signals")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, StopFile), []byte(time.Now().Format(time.RFC3339)), 0644)
}

// Clear removes the stop file and resets state.
func (w *Watcher) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopSignal = false
	os.Remove(filepath.Join(w.signalsDir, StopFile))
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
		if w.watcher != nil {
			w.watcher.Close()
		}
	})
}
