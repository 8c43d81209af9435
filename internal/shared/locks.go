package shared

import (
	"context"
	"fmt"
	"sync"
)

// InvoiceLockKey builds the lock key guarding payment application on an invoice.
func InvoiceLockKey(invoiceID int64) string {
	return fmt.Sprintf("torque:invoice:%d:lock", invoiceID)
}

// SlotLockKey builds the lock key for a technician's calendar day.
func SlotLockKey(resourceID int64, day string) string {
	return fmt.Sprintf("torque:slot:%d:%s:lock", resourceID, day)
}

// KeyedMutex serialises critical sections per key within one process.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex constructs an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free or ctx is done. The returned func releases the key.
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	entry, ok := m.locks[key]
	if !ok {
		entry = &keyedEntry{ch: make(chan struct{}, 1)}
		m.locks[key] = entry
	}
	entry.refs++
	m.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(key, entry, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { m.release(key, entry, true) })
	}, nil
}

func (m *KeyedMutex) release(key string, entry *keyedEntry, held bool) {
	if held {
		<-entry.ch
	}
	m.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(m.locks, key)
	}
	m.mu.Unlock()
}
