package resource

import (
	"context"
	"sync"
)

// StreamCache is cached stream data that a writer updates and persists
// while readers look up the current version.
type StreamCache interface {
	// WriteAndPersist replaces the data and then runs persist on a copy.
	WriteAndPersist(ctx context.Context, data []byte, persist func(ctx context.Context, data []byte) error) error
	// Version returns the number of writes so far.
	Version() uint64
}

type streamData struct {
	mu      sync.RWMutex
	data    []byte
	version uint64
}

func (c *streamData) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// LockedIOCache keeps the write lock while persisting, so every reader
// waits for the IO to finish.
//
// Lock discipline: the write lock spans the update and the persist call.
type LockedIOCache struct {
	streamData
}

// NewLockedIOCache returns an empty cache at version 0.
func NewLockedIOCache() *LockedIOCache { return &LockedIOCache{} }

func (c *LockedIOCache) WriteAndPersist(ctx context.Context, data []byte, persist func(ctx context.Context, data []byte) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = append(c.data[:0], data...)
	c.version++
	return persist(ctx, c.data)
}

// CopyThenPersistCache copies the data under the write lock and persists
// the copy after releasing it.
//
// Lock discipline: the write lock covers only the update and the copy.
type CopyThenPersistCache struct {
	streamData
}

// NewCopyThenPersistCache returns an empty cache at version 0.
func NewCopyThenPersistCache() *CopyThenPersistCache { return &CopyThenPersistCache{} }

func (c *CopyThenPersistCache) WriteAndPersist(ctx context.Context, data []byte, persist func(ctx context.Context, data []byte) error) error {
	c.mu.Lock()
	c.data = append(c.data[:0], data...)
	c.version++
	snapshot := append([]byte(nil), c.data...)
	c.mu.Unlock()
	return persist(ctx, snapshot)
}
