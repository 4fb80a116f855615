package resource

import (
	"context"
	"sort"
)

// Registry is a set of live connections behind a reader/writer lock.
type Registry struct {
	lock  *RWMutex
	conns map[string]bool
}

// NewRegistry returns a registry holding ids.
func NewRegistry(ids ...string) *Registry {
	r := &Registry{lock: NewRWMutex(), conns: make(map[string]bool, len(ids))}
	for _, id := range ids {
		r.conns[id] = true
	}
	return r
}

// RWMutex returns the lock guarding the registry.
func (r *Registry) RWMutex() *RWMutex { return r.lock }

// Contains reports whether id is registered. It takes the read lock.
func (r *Registry) Contains(ctx context.Context, id string) (bool, error) {
	if err := r.lock.RLock(ctx); err != nil {
		return false, err
	}
	defer r.lock.RUnlock()
	return r.conns[id], nil
}

// Add registers id under the write lock.
func (r *Registry) Add(ctx context.Context, id string) error {
	if err := r.lock.Lock(ctx); err != nil {
		return err
	}
	defer r.lock.Unlock()
	r.conns[id] = true
	return nil
}

// snapshot returns the registered ids, sorted. The caller holds a lock.
func (r *Registry) snapshot() []string {
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Broadcaster sends a message to every registered connection.
type Broadcaster interface {
	Broadcast(ctx context.Context, r *Registry, send func(ctx context.Context, id string) error) error
}

// HoldingBroadcaster keeps the read lock for the whole broadcast. A send
// that consults the registry again re-enters the read lock, and blocks
// forever once a writer has queued up behind the outer read lock.
//
// Lock discipline: one read lock spanning every send.
type HoldingBroadcaster struct{}

func (HoldingBroadcaster) Broadcast(ctx context.Context, r *Registry, send func(ctx context.Context, id string) error) error {
	if err := r.lock.RLock(ctx); err != nil {
		return err
	}
	defer r.lock.RUnlock()
	for _, id := range r.snapshot() {
		if err := send(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// SnapshotBroadcaster copies the registered ids under the read lock and
// sends after releasing it.
//
// Lock discipline: the read lock covers only the copy.
type SnapshotBroadcaster struct{}

func (SnapshotBroadcaster) Broadcast(ctx context.Context, r *Registry, send func(ctx context.Context, id string) error) error {
	if err := r.lock.RLock(ctx); err != nil {
		return err
	}
	ids := r.snapshot()
	r.lock.RUnlock()
	for _, id := range ids {
		if err := send(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
