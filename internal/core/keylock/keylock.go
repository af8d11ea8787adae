// Package keylock provides per-key mutual exclusion.
//
// The ledger serializes appends per (organization, item, location) key so
// that a read-check-append sequence cannot interleave with another append
// for the same key and compute a stale balance. The PostgreSQL repository
// uses an advisory transaction lock for this; the in-memory store and any
// backend without row locks use this keyed mutex instead.
package keylock

import (
	"sync"
)

// KeyLock is a set of named mutexes. The zero value is not usable; use New.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New creates an empty KeyLock.
func New() *KeyLock {
	return &KeyLock{locks: make(map[string]*entry)}
}

// Lock acquires the mutex for key, blocking until it is free.
// Entries are reference-counted and removed once the last holder unlocks,
// so the map does not grow with the keyspace.
func (k *KeyLock) Lock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the mutex for key. Unlocking a key that is not held
// panics, same as sync.Mutex.
func (k *KeyLock) Unlock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		k.mu.Unlock()
		panic("keylock: unlock of unheld key " + key)
	}
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	e.mu.Unlock()
}

// Do runs fn while holding the lock for key.
func (k *KeyLock) Do(key string, fn func()) {
	k.Lock(key)
	defer k.Unlock(key)
	fn()
}
