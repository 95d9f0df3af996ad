package syncer

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Lock serializes every operation that writes to Crowdin or pushes to
// repositories. The zero value is not usable; use NewLock.
type Lock struct {
	sem *semaphore.Weighted
}

// NewLock returns an unlocked Lock.
func NewLock() *Lock {
	return &Lock{sem: semaphore.NewWeighted(1)}
}

// Acquire blocks until the lock is free or ctx is done.
func (l *Lock) Acquire(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

// TryAcquire takes the lock only if it is free.
func (l *Lock) TryAcquire() bool {
	return l.sem.TryAcquire(1)
}

// Release frees the lock.
func (l *Lock) Release() {
	l.sem.Release(1)
}
