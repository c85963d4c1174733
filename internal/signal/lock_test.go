package signal

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestAcquireRunLockExclusive(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".decomp")

	first, err := AcquireRunLock(dir)
	if err != nil {
		t.Fatalf("AcquireRunLock failed: %v", err)
	}
	if first.Path() != filepath.Join(dir, LockFile) {
		t.Errorf("unexpected lock path %q", first.Path())
	}

	if _, err := AcquireRunLock(dir); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("second AcquireRunLock error = %v, want ErrRunInProgress", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Errorf("second Release failed: %v", err)
	}

	again, err := AcquireRunLock(dir)
	if err != nil {
		t.Fatalf("AcquireRunLock after release failed: %v", err)
	}
	again.Release()
}
