package alerting

import "sync"

type refMutex struct {
	mu   sync.Mutex
	refs int
}

// keyedLocker serializes work per key. Entries are dropped once unused so
// the map only holds keys that are currently locked or waited on.
type keyedLocker struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

func newKeyedLocker() *keyedLocker {
	return &keyedLocker{locks: make(map[string]*refMutex)}
}

func (k *keyedLocker) Lock(key string) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.mu.Lock()
}

func (k *keyedLocker) Unlock(key string) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		k.mu.Unlock()
		panic("alerting: unlock of unlocked key " + key)
	}
	m.refs--
	if m.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	m.mu.Unlock()
}

func (k *keyedLocker) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
