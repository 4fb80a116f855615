// Package resource holds the shared-state primitives the scenarios fight
// over. Each resource is an interface with a buggy implementation that shows
// a known concurrency defect and one or more fixed implementations that
// remove it. Scenarios pick one through a variant.Table.
//
// Every implementation documents its lock granularity and how long the lock
// is held, since that discipline is what a scenario puts under test.
package resource

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// RaceWindow is a hook called at the point where a buggy implementation has
// released its lock but not yet finished its update. Scenarios use it to
// park every actor inside the window with a barrier. Fixed implementations
// call it before entering their critical section, so the same timing plan
// runs against both.
//
// A nil RaceWindow yields the processor instead.
type RaceWindow func(ctx context.Context) error

func (w RaceWindow) open(ctx context.Context) error {
	if w == nil {
		runtime.Gosched()
		return nil
	}
	return w(ctx)
}

// Update describes one increment: the value the counter held when the
// increment read it, and the value it wrote.
type Update struct {
	Read  int64
	Wrote int64
}

// Counter is a shared integer counter.
type Counter interface {
	// Increment adds by to the counter.
	Increment(ctx context.Context, by int64) (Update, error)
	// Read returns the current value.
	Read() int64
}

// RacyCounter performs a non-atomic read-modify-write.
//
// Lock discipline: the lock is taken once to read and again to write, and
// released in between. An increment that lands in that gap is overwritten.
type RacyCounter struct {
	mu     sync.Mutex
	value  int64
	window RaceWindow
}

// NewRacyCounter returns a zero counter that calls window between its read
// and its write.
func NewRacyCounter(window RaceWindow) *RacyCounter {
	return &RacyCounter{window: window}
}

func (c *RacyCounter) Increment(ctx context.Context, by int64) (Update, error) {
	c.mu.Lock()
	cur := c.value
	c.mu.Unlock()

	if err := c.window.open(ctx); err != nil {
		return Update{Read: cur}, err
	}

	c.mu.Lock()
	c.value = cur + by
	c.mu.Unlock()
	return Update{Read: cur, Wrote: cur + by}, nil
}

func (c *RacyCounter) Read() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// MutexCounter holds one lock across the whole read-modify-write.
//
// Lock discipline: a single critical section per increment.
type MutexCounter struct {
	mu     sync.Mutex
	value  int64
	window RaceWindow
}

// NewMutexCounter returns a zero counter. window runs before the critical
// section.
func NewMutexCounter(window RaceWindow) *MutexCounter {
	return &MutexCounter{window: window}
}

func (c *MutexCounter) Increment(ctx context.Context, by int64) (Update, error) {
	if err := c.window.open(ctx); err != nil {
		return Update{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	u := Update{Read: c.value, Wrote: c.value + by}
	c.value += by
	return u, nil
}

func (c *MutexCounter) Read() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// AtomicCounter uses a single atomic add and holds no lock.
type AtomicCounter struct {
	value  atomic.Int64
	window RaceWindow
}

// NewAtomicCounter returns a zero counter. window runs before the add.
func NewAtomicCounter(window RaceWindow) *AtomicCounter {
	return &AtomicCounter{window: window}
}

func (c *AtomicCounter) Increment(ctx context.Context, by int64) (Update, error) {
	if err := c.window.open(ctx); err != nil {
		return Update{}, err
	}
	n := c.value.Add(by)
	return Update{Read: n - by, Wrote: n}, nil
}

func (c *AtomicCounter) Read() int64 {
	return c.value.Load()
}
