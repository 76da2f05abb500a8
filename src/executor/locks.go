package executor

import "sync"

// AccountLocks serializes mutating work per account owner. Accounts are
// independent, so operations on different owners proceed concurrently;
// operations on the same owner take turns.
type AccountLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewAccountLocks() *AccountLocks {
	return &AccountLocks{locks: make(map[string]*sync.Mutex)}
}

// Get returns the mutex for the owner, creating it on first use.
// Locks are never removed; the owner set is small and stable.
func (l *AccountLocks) Get(owner string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[owner]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[owner] = lock
	}
	return lock
}
