package booking

import (
	"sync"

	"github.com/google/uuid"

	"github.com/jonakson/beautyconnect/internal/clock"
)

type lockKey struct {
	business uuid.UUID
	staff    uuid.UUID
	day      clock.Date
}

// keyedMutex hands out one mutex per key and forgets it once unused, so
// different staff or days never contend.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[lockKey]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[lockKey]*refMutex)}
}

func (k *keyedMutex) Lock(key lockKey) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
