package resource

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// GuardTable grants named exclusive guards to owners. A key stays held
// until its Guard is released; a guard that is never released blocks every
// later Acquire of that key.
type GuardTable struct {
	mu      sync.Mutex
	held    map[string]string
	changed chan struct{}
}

// NewGuardTable returns an empty table.
func NewGuardTable() *GuardTable {
	return &GuardTable{held: make(map[string]string), changed: make(chan struct{})}
}

// Guard is an acquired key. Release is idempotent.
type Guard struct {
	table *GuardTable
	key   string
	owner string
	once  sync.Once
}

// Key returns the guarded key.
func (g *Guard) Key() string { return g.key }

// Owner returns the owner the guard was granted to.
func (g *Guard) Owner() string { return g.owner }

// Release frees the key. Calls after the first are no-ops.
func (g *Guard) Release() {
	g.once.Do(func() { g.table.release(g.key, g.owner) })
}

// Acquire blocks until key is free or ctx ends.
func (t *GuardTable) Acquire(ctx context.Context, key, owner string) (*Guard, error) {
	for {
		t.mu.Lock()
		holder, busy := t.held[key]
		if !busy {
			t.held[key] = owner
			t.mu.Unlock()
			return &Guard{table: t, key: key, owner: owner}, nil
		}
		wait := t.changed
		t.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, fmt.Errorf("guard %q held by %s: %w", key, holder, ctx.Err())
		}
	}
}

// Holder returns the current owner of key.
func (t *GuardTable) Holder(key string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.held[key]
	return o, ok
}

// Held returns the keys currently held, sorted.
func (t *GuardTable) Held() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.held))
	for k := range t.held {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (t *GuardTable) release(key, owner string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.held[key] != owner {
		return
	}
	delete(t.held, key)
	close(t.changed)
	t.changed = make(chan struct{})
}

// Scope runs a body while holding a guard.
type Scope interface {
	Run(ctx context.Context, key, owner string, body func(ctx context.Context) error) error
}

// SuccessOnlyScope releases the guard only after the body returns nil.
//
// Lock discipline: the guard is held for the body. On error or panic the
// release is skipped and the key stays held for the rest of the run.
type SuccessOnlyScope struct {
	Table *GuardTable
}

func (s SuccessOnlyScope) Run(ctx context.Context, key, owner string, body func(ctx context.Context) error) error {
	g, err := s.Table.Acquire(ctx, key, owner)
	if err != nil {
		return err
	}
	if err := body(ctx); err != nil {
		return err
	}
	g.Release()
	return nil
}

// DeferredScope releases the guard on every exit path, panics included.
//
// Lock discipline: the guard is held for the body and released by defer.
type DeferredScope struct {
	Table *GuardTable
}

func (s DeferredScope) Run(ctx context.Context, key, owner string, body func(ctx context.Context) error) error {
	g, err := s.Table.Acquire(ctx, key, owner)
	if err != nil {
		return err
	}
	defer g.Release()
	return body(ctx)
}
