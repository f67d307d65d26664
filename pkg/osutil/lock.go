package osutil

import (
	"context"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

const (
	lockRetries    = 50
	lockRetryDelay = 10 * time.Millisecond
)

// ErrLocked is returned when a file lock cannot be acquired in time
var ErrLocked = errors.New("file is locked by another process")

// WithFileLock runs fn while holding an exclusive lock on path + ".lock".
// The lock lives beside the file so atomic renames of path do not drop it.
func WithFileLock(ctx context.Context, path string, fn func() error) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	lock := flock.New(path + ".lock")

	var locked bool
	for i := 0; i < lockRetries; i++ {
		var err error
		locked, err = lock.TryLock()
		if err != nil {
			return errors.Wrapf(err, "failed to lock %s", path)
		}
		if locked {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
	if !locked {
		return errors.Wrapf(ErrLocked, "%s", path)
	}
	defer lock.Unlock()

	return fn()
}
