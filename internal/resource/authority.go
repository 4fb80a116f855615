package resource

import (
	"context"
	"sync"
)

// Authority executes orders against owned objects. An owned object may be
// used by one order at a time.
type Authority interface {
	// Execute runs body as order's execution against object. window runs
	// after the order is admitted and before it executes.
	Execute(ctx context.Context, order, object string, window RaceWindow, body func(ctx context.Context) error) error
	// Conflicts returns how many times an order found another order for
	// the same object already in flight.
	Conflicts() int
}

// UnlockedAuthority records in-flight orders per object but locks nothing,
// so conflicting orders for one object execute side by side. The conflict
// is only noticed after both have started.
//
// Lock discipline: a bookkeeping mutex per call; nothing spans execution.
type UnlockedAuthority struct {
	mu        sync.Mutex
	inflight  map[string]map[string]bool
	conflicts int
}

// NewUnlockedAuthority returns an authority with nothing in flight.
func NewUnlockedAuthority() *UnlockedAuthority {
	return &UnlockedAuthority{inflight: make(map[string]map[string]bool)}
}

func (a *UnlockedAuthority) Execute(ctx context.Context, order, object string, window RaceWindow, body func(ctx context.Context) error) error {
	a.mu.Lock()
	if a.inflight[object] == nil {
		a.inflight[object] = make(map[string]bool)
	}
	a.inflight[object][order] = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.inflight[object], order)
		a.mu.Unlock()
	}()

	if err := window.open(ctx); err != nil {
		return err
	}

	a.mu.Lock()
	if len(a.inflight[object]) > 1 {
		a.conflicts++
	}
	a.mu.Unlock()
	return body(ctx)
}

func (a *UnlockedAuthority) Conflicts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conflicts
}

// LockingAuthority takes the object's guard before executing, so a
// conflicting order waits for the first to finish.
//
// Lock discipline: one guard per object, held for the execution and
// released on every exit path.
type LockingAuthority struct {
	Table *GuardTable

	mu        sync.Mutex
	conflicts int
}

// NewLockingAuthority returns an authority guarding objects in t.
func NewLockingAuthority(t *GuardTable) *LockingAuthority {
	return &LockingAuthority{Table: t}
}

func (a *LockingAuthority) Execute(ctx context.Context, order, object string, window RaceWindow, body func(ctx context.Context) error) error {
	if err := window.open(ctx); err != nil {
		return err
	}
	if holder, busy := a.Table.Holder(object); busy && holder != order {
		a.mu.Lock()
		a.conflicts++
		a.mu.Unlock()
	}
	return DeferredScope{Table: a.Table}.Run(ctx, object, order, body)
}

func (a *LockingAuthority) Conflicts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conflicts
}
