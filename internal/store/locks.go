package store

import (
	"sync"
)

// taskLocks provides per-task mutual exclusion. Each task id gets its own
// mutex, so writers to different tasks never block each other.
type taskLocks struct {
	mu    sync.Mutex             // Guards the locks map itself
	locks map[string]*sync.Mutex // Per-task mutexes
}

func newTaskLocks() *taskLocks {
	return &taskLocks{
		locks: make(map[string]*sync.Mutex),
	}
}

// Lock acquires the mutex for id, creating it on first access.
func (l *taskLocks) Lock(id string) {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()

	// Acquire outside the map lock to avoid contention
	m.Lock()
}

// Unlock releases the mutex for id.
func (l *taskLocks) Unlock(id string) {
	l.mu.Lock()
	m, ok := l.locks[id]
	l.mu.Unlock()

	if ok {
		m.Unlock()
	}
}
