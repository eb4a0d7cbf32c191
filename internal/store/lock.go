package store

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// Locker serializes read-modify-write cycles on the store.
type Locker interface {
	Lock(ctx context.Context) error
	Unlock() error
}

// lockRetry is how often a contended file lock is retried.
const lockRetry = 25 * time.Millisecond

// FileLocker is an advisory, cross-process lock on a file.
type FileLocker struct {
	fl *flock.Flock
}

// NewFileLocker returns a lock on path. The file is created on first use.
func NewFileLocker(path string) *FileLocker {
	return &FileLocker{fl: flock.New(path)}
}

// Lock blocks until the lock is held or ctx is done.
func (l *FileLocker) Lock(ctx context.Context) error {
	ok, err := l.fl.TryLockContext(ctx, lockRetry)
	if err != nil {
		return fmt.Errorf("acquiring store lock %s: %w", l.fl.Path(), err)
	}
	if !ok {
		return fmt.Errorf("acquiring store lock %s: not acquired", l.fl.Path())
	}
	return nil
}

// Unlock releases the lock.
func (l *FileLocker) Unlock() error {
	return l.fl.Unlock()
}

// mutexLocker is the in-process fallback used with non-OS filesystems.
type mutexLocker struct {
	ch chan struct{}
}

func newMutexLocker() *mutexLocker {
	return &mutexLocker{ch: make(chan struct{}, 1)}
}

func (l *mutexLocker) Lock(ctx context.Context) error {
	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *mutexLocker) Unlock() error {
	select {
	case <-l.ch:
	default:
	}
	return nil
}

// withLock runs fn while holding the store lock.
func (s *FileStore) withLock(ctx context.Context, fn func() error) error {
	if err := s.lock.Lock(ctx); err != nil {
		return err
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}
