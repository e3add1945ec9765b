package progress

import "sync"

type refMutex struct {
	sync.Mutex
	refs int
}

// keyedMutex one mutex per key, created on demand and dropped once unused
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock lock key and return its unlock func
func (km *keyedMutex) Lock(key string) func() {
	km.mu.Lock()
	m, ok := km.locks[key]
	if !ok {
		m = new(refMutex)
		km.locks[key] = m
	}
	m.refs++
	km.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		km.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(km.locks, key)
		}
		km.mu.Unlock()
	}
}

func (km *keyedMutex) size() int {
	km.mu.Lock()
	defer km.mu.Unlock()
	return len(km.locks)
}
