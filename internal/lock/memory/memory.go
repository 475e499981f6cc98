package memory

import (
	"context"
	"sync"
	"time"

	"github.com/modernalchemist/magic-sub000/internal/lock"
)

type entry struct {
	owner     string
	expiresAt time.Time
}

// Locker is an in-process lock.Locker, only valid for a single process deployment.
type Locker struct {
	mu        sync.Mutex
	locks     map[string]entry
	timeNowFn func() time.Time
}

// NewLocker returns a new memory locker.
func NewLocker() *Locker {
	return &Locker{
		locks:     map[string]entry{},
		timeNowFn: time.Now,
	}
}

// TryLock satisfies lock.Locker interface.
func (l *Locker) TryLock(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.timeNowFn()
	if e, ok := l.locks[key]; ok && now.Before(e.expiresAt) {
		return false, nil
	}

	l.locks[key] = entry{owner: owner, expiresAt: now.Add(ttl)}
	return true, nil
}

// Release satisfies lock.Locker interface.
func (l *Locker) Release(_ context.Context, key, owner string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.locks[key]
	if !ok || e.owner != owner {
		return false, nil
	}

	delete(l.locks, key)
	return true, nil
}

var _ lock.Locker = &Locker{}
