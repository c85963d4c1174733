package signal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockFile is the file name of the per-project run lock.
const LockFile = "run.lock"

// ErrRunInProgress is returned when another process holds the run lock.
var ErrRunInProgress = errors.New("another run is in progress in this project")

// RunLock is an exclusive, process-wide lock on a state directory. Only one
// execution per project may hold it, so a stop signal always targets a
// single run.
type RunLock struct {
	flock *flock.Flock
	path  string
}

// AcquireRunLock takes the run lock under stateDir without blocking.
func AcquireRunLock(stateDir string) (*RunLock, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	path := filepath.Join(stateDir, LockFile)
	fl := flock.New(path)

	acquired, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to try lock on %s: %w", path, err)
	}
	if !acquired {
		return nil, ErrRunInProgress
	}
	return &RunLock{flock: fl, path: path}, nil
}

// Path returns the lock file path.
func (l *RunLock) Path() string {
	return l.path
}

// Release unlocks the run lock. It is safe to call more than once.
func (l *RunLock) Release() error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock on %s: %w", l.path, err)
	}
	return nil
}
