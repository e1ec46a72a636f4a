package daemon

import (
	"errors"
	"fmt"
	"os"

	"github.com/gofrs/flock"
)

// ErrMountpointBusy is returned when another process serves the same
// mountpoint.
var ErrMountpointBusy = errors.New("mountpoint is already served by another markdownfs process")

// AcquireMountLock takes the per-mountpoint lock without blocking. The
// caller unlocks it when the mount ends.
func AcquireMountLock(key string) (*flock.Flock, error) {
	if err := os.MkdirAll(LocksDir(), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create locks directory: %w", err)
	}
	lock := flock.New(LockPath(key))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrMountpointBusy, key)
	}
	return lock, nil
}
