package gallery

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// keyedLock serializes work per record id. Entries are dropped when the
// last holder or waiter leaves.
type keyedLock struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{entries: make(map[uuid.UUID]*lockEntry)}
}

// Lock blocks until id is free or ctx is done
func (k *keyedLock) Lock(ctx context.Context, id uuid.UUID) error {
	k.mu.Lock()
	e, ok := k.entries[id]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		k.entries[id] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		k.release(id, e)
		return ctx.Err()
	}
}

// Unlock frees id
func (k *keyedLock) Unlock(id uuid.UUID) {
	k.mu.Lock()
	e, ok := k.entries[id]
	k.mu.Unlock()
	if !ok {
		return
	}
	<-e.ch
	k.release(id, e)
}

// Held reports whether any caller holds or waits on id
func (k *keyedLock) Held(id uuid.UUID) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.entries[id]
	return ok
}

func (k *keyedLock) release(id uuid.UUID, e *lockEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, id)
	}
}
