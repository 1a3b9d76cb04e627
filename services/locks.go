package services

import "sync"

// keyedLocks provides per-key mutual exclusion so concurrent transitions
// on the same plate or alert resolve deterministically. Locks are never
// held across I/O to external systems, only around the DB transaction
// for one entity.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedLocks) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}

// Lock acquires the mutex for key and returns its unlock function.
func (k *keyedLocks) Lock(key string) func() {
	m := k.get(key)
	m.Lock()
	return m.Unlock
}
