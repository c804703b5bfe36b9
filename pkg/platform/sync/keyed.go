// Package sync provides locking helpers for long-held, per-resource critical
// sections such as a wallet's mint run or a credential's issuance.
package sync

import (
	"context"
	"sync"
)

// KeyedMutex serializes work per key. Unrelated keys never contend, which
// matters when a holder keeps the lock for a whole ledger confirmation.
// Entries are reference counted and dropped once no goroutine holds or waits.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{} // buffered(1): a token means the key is held
	refs int
}

// NewKeyedMutex returns an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*entry)}
}

// Lock blocks until key is free.
func (m *KeyedMutex) Lock(key string) {
	e := m.acquire(key)
	e.ch <- struct{}{}
}

// LockContext is Lock bounded by ctx. It returns ctx.Err() without holding
// the key when ctx ends first.
func (m *KeyedMutex) LockContext(ctx context.Context, key string) error {
	e := m.acquire(key)
	select {
	case e.ch <- struct{}{}:
		return nil
	default:
	}
	select {
	case e.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		m.release(key, e)
		return ctx.Err()
	}
}

// Unlock releases key. Unlocking a key that is not held panics.
func (m *KeyedMutex) Unlock(key string) {
	m.mu.Lock()
	e, ok := m.locks[key]
	m.mu.Unlock()
	if !ok {
		panic("sync: unlock of unlocked key " + key)
	}
	select {
	case <-e.ch:
	default:
		panic("sync: unlock of unlocked key " + key)
	}
	m.release(key, e)
}

// Len reports how many keys are held or awaited.
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

func (m *KeyedMutex) acquire(key string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		m.locks[key] = e
	}
	e.refs++
	return e
}

func (m *KeyedMutex) release(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
}
