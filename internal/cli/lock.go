package cli

import (
	stdcontext "context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const (
	lockRetryInterval = 100 * time.Millisecond
	lockTimeout       = 2 * time.Second
)

// acquireManifestLock ensures a single supervisor runs per manifest.
// The caller must Unlock the returned lock.
func acquireManifestLock(ctx stdcontext.Context, lockPath string) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	lock := flock.New(lockPath)

	ctx, cancel := stdcontext.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := lock.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return nil, fmt.Errorf("another supervisor is running (lock held: %s): %w", lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("another supervisor is running (lock held: %s)", lockPath)
	}
	return lock, nil
}

func defaultLockPath(manifest string) string {
	return manifest + ".lock"
}
