// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package runlock keeps two mutating runs from working on the same index at
// once. The lock is an advisory file lock, released when the holder exits.
package runlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileName is the lock file created in the lock directory.
const FileName = ".datacatalog.lock"

// ErrLocked is returned when another run holds the lock.
var ErrLocked = errors.New("another catalog run holds the index lock")

// Lock is a held run lock.
type Lock struct {
	fl *flock.Flock
}

// Acquire takes the lock in dir without waiting. It returns ErrLocked if
// another process or Lock holds it.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	fl := flock.New(filepath.Join(dir, FileName))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", fl.Path(), err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrLocked, fl.Path())
	}
	return &Lock{fl: fl}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.fl.Path() }

// Release gives the lock up. Releasing twice is harmless.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}
