package upload

import "sync"

// sessionLocks serializes mutating operations per session ID. The offset
// precondition alone is not enough: two appends carrying the same expected
// offset could both pass a stale read before either commits, so every append,
// finalize and cancel holds the session's exclusive lock for its duration.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

// Lock acquires the exclusive lock for a session ID, creating it on first use
func (l *sessionLocks) Lock(sessionID string) {
	l.mu.Lock()
	entry, ok := l.locks[sessionID]
	if !ok {
		entry = &sessionLock{}
		l.locks[sessionID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
}

// Unlock releases the session's lock and frees it once no caller is waiting
func (l *sessionLocks) Unlock(sessionID string) {
	l.mu.Lock()
	entry, ok := l.locks[sessionID]
	if !ok {
		l.mu.Unlock()
		return
	}
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, sessionID)
	}
	l.mu.Unlock()

	entry.mu.Unlock()
}
