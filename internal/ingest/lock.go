package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LockFileName marks an output root owned by a running ingest.
const LockFileName = ".ingest.lock"

// ErrLocked is returned when another ingest holds the output root.
var ErrLocked = errors.New("output directory locked by another ingest")

// Lock is an exclusive claim on an output root, so that only one process
// updates its statistics snapshot.
type Lock struct {
	path string
}

// AcquireLock creates the lock file in dir, failing with ErrLocked when it
// already exists.
func AcquireLock(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, LockFileName)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, fmt.Errorf("create lock file: %w", err)
	}
	_, err = fmt.Fprintf(f, "pid=%d\ntime=%s\n", os.Getpid(), time.Now().Format(time.RFC3339))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write lock file: %w", err)
	}
	return &Lock{path: path}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release removes the lock file.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}
