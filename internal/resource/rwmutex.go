package resource

import (
	"context"
	"sync"
)

// RWMutex is a writer-preferring reader/writer lock whose waits can be
// abandoned when a context ends. Once a writer is waiting no new reader is
// admitted, so a reader that takes the read lock again while already
// holding it blocks behind that writer, and the writer blocks behind it.
// sync.RWMutex behaves the same way but cannot be cancelled.
//
// An RWMutex must be created with NewRWMutex.
type RWMutex struct {
	mu       sync.Mutex
	readers  int
	writer   bool
	waiting  int
	requests int
	changed  chan struct{}
}

// NewRWMutex returns an unlocked RWMutex.
func NewRWMutex() *RWMutex {
	return &RWMutex{changed: make(chan struct{})}
}

func (m *RWMutex) broadcast() {
	close(m.changed)
	m.changed = make(chan struct{})
}

// RLock blocks until no writer holds or waits for the lock, or ctx ends.
func (m *RWMutex) RLock(ctx context.Context) error {
	for {
		m.mu.Lock()
		if !m.writer && m.waiting == 0 {
			m.readers++
			m.mu.Unlock()
			return nil
		}
		wait := m.changed
		m.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RUnlock releases one read lock.
func (m *RWMutex) RUnlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readers == 0 {
		panic("resource: RUnlock of unlocked RWMutex")
	}
	m.readers--
	m.broadcast()
}

// Lock blocks until the lock is free of readers and writers, or ctx ends.
// While it waits, new readers are held back.
func (m *RWMutex) Lock(ctx context.Context) error {
	m.mu.Lock()
	m.waiting++
	m.requests++
	m.broadcast()
	m.mu.Unlock()

	for {
		m.mu.Lock()
		if !m.writer && m.readers == 0 {
			m.waiting--
			m.writer = true
			m.mu.Unlock()
			return nil
		}
		wait := m.changed
		m.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			m.mu.Lock()
			m.waiting--
			m.broadcast()
			m.mu.Unlock()
			return ctx.Err()
		}
	}
}

// Unlock releases the write lock.
func (m *RWMutex) Unlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.writer {
		panic("resource: Unlock of unlocked RWMutex")
	}
	m.writer = false
	m.broadcast()
}

// AwaitWriter blocks until some writer has asked for the lock at least
// once, or ctx ends.
func (m *RWMutex) AwaitWriter(ctx context.Context) error {
	for {
		m.mu.Lock()
		if m.requests > 0 {
			m.mu.Unlock()
			return nil
		}
		wait := m.changed
		m.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
