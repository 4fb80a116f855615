package resource

import "context"

// Mutex is a mutual-exclusion lock whose Lock can be abandoned when a
// context ends.
//
// Resources that may deadlock on purpose use Mutex instead of sync.Mutex,
// so that when the watchdog cancels a run the blocked actors unwind instead
// of leaking goroutines. Cancellation only ever interrupts a wait to
// acquire; it never interrupts a holder.
//
// A Mutex must be created with NewMutex.
type Mutex struct {
	ch chan struct{}
}

// NewMutex returns an unlocked Mutex.
func NewMutex() *Mutex {
	return &Mutex{ch: make(chan struct{}, 1)}
}

// Lock blocks until the mutex is acquired or ctx ends.
func (m *Mutex) Lock(ctx context.Context) error {
	select {
	case m.ch <- struct{}{}:
		return nil
	default:
	}
	select {
	case m.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryLock acquires the mutex if it is free and reports whether it did.
func (m *Mutex) TryLock() bool {
	select {
	case m.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Unlock releases the mutex. Unlocking an unlocked Mutex panics.
func (m *Mutex) Unlock() {
	select {
	case <-m.ch:
	default:
		panic("resource: unlock of unlocked Mutex")
	}
}

// Locked reports whether the mutex is currently held.
func (m *Mutex) Locked() bool {
	return len(m.ch) == 1
}
