package resource

import (
	"context"
	"fmt"
)

// LockPair guards an operation that needs two locks at once.
type LockPair interface {
	// WithBoth runs body holding both locks. Callers whose natural access
	// path reaches the second lock first pass reversed. window runs while
	// the caller holds at most one lock.
	WithBoth(ctx context.Context, reversed bool, window RaceWindow, body func() error) error
	// Names returns the two lock names in canonical order.
	Names() [2]string
}

type namedLock struct {
	name string
	mu   *Mutex
}

func (l namedLock) lock(ctx context.Context) error {
	if err := l.mu.Lock(ctx); err != nil {
		return fmt.Errorf("lock %s: %w", l.name, err)
	}
	return nil
}

type lockPair struct {
	first, second namedLock
}

func newLockPair(first, second string) lockPair {
	return lockPair{
		first:  namedLock{name: first, mu: NewMutex()},
		second: namedLock{name: second, mu: NewMutex()},
	}
}

func (p *lockPair) Names() [2]string { return [2]string{p.first.name, p.second.name} }

// Held reports which of the two locks are currently held.
func (p *lockPair) Held() (first, second bool) {
	return p.first.mu.Locked(), p.second.mu.Locked()
}

// InconsistentPair takes the locks in whatever order the caller's path
// reaches them.
//
// Lock discipline: the outer lock is held across window and the
// acquisition of the inner lock. Two callers on opposite paths each hold
// one lock and wait forever for the other.
type InconsistentPair struct {
	lockPair
}

// NewInconsistentPair returns a pair of unlocked mutexes.
func NewInconsistentPair(first, second string) *InconsistentPair {
	return &InconsistentPair{lockPair: newLockPair(first, second)}
}

func (p *InconsistentPair) WithBoth(ctx context.Context, reversed bool, window RaceWindow, body func() error) error {
	outer, inner := p.first, p.second
	if reversed {
		outer, inner = inner, outer
	}
	if err := outer.lock(ctx); err != nil {
		return err
	}
	defer outer.mu.Unlock()

	if err := window.open(ctx); err != nil {
		return err
	}

	if err := inner.lock(ctx); err != nil {
		return err
	}
	defer inner.mu.Unlock()
	return body()
}

// OrderedPair always takes the first lock, then the second, regardless of
// the caller's path.
//
// Lock discipline: window runs before any lock is taken; both locks are
// then held for body.
type OrderedPair struct {
	lockPair
}

// NewOrderedPair returns a pair of unlocked mutexes.
func NewOrderedPair(first, second string) *OrderedPair {
	return &OrderedPair{lockPair: newLockPair(first, second)}
}

func (p *OrderedPair) WithBoth(ctx context.Context, _ bool, window RaceWindow, body func() error) error {
	if err := window.open(ctx); err != nil {
		return err
	}
	if err := p.first.lock(ctx); err != nil {
		return err
	}
	defer p.first.mu.Unlock()
	if err := p.second.lock(ctx); err != nil {
		return err
	}
	defer p.second.mu.Unlock()
	return body()
}
