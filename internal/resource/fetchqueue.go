package resource

import (
	"context"
	"fmt"
	"sync"
)

// FetchQueue is a FIFO of items waiting to be fetched. Its consumer may
// push more items while handling one.
type FetchQueue interface {
	// Push adds item, blocking while the queue has no room or until ctx
	// ends.
	Push(ctx context.Context, item string) error
	// Pop removes the oldest item, blocking until one exists or ctx ends.
	Pop(ctx context.Context) (string, error)
	// Len returns the number of queued items.
	Len() int
}

// BoundedQueue holds at most a fixed number of items. A consumer that
// pushes more than the free room while handling an item blocks on its own
// queue, since nobody else pops.
type BoundedQueue struct {
	ch chan string
}

// NewBoundedQueue returns a queue with room for capacity items.
func NewBoundedQueue(capacity int) *BoundedQueue {
	return &BoundedQueue{ch: make(chan string, capacity)}
}

func (q *BoundedQueue) Push(ctx context.Context, item string) error {
	select {
	case q.ch <- item:
		return nil
	default:
	}
	select {
	case q.ch <- item:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("push %s onto full queue (%d/%d): %w", item, len(q.ch), cap(q.ch), ctx.Err())
	}
}

func (q *BoundedQueue) Pop(ctx context.Context) (string, error) {
	select {
	case item := <-q.ch:
		return item, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (q *BoundedQueue) Len() int { return len(q.ch) }

// UnboundedQueue never refuses or blocks a push.
type UnboundedQueue struct {
	mu    sync.Mutex
	items []string
	ready chan struct{}
}

// NewUnboundedQueue returns an empty queue.
func NewUnboundedQueue() *UnboundedQueue {
	return &UnboundedQueue{ready: make(chan struct{})}
}

func (q *UnboundedQueue) Push(_ context.Context, item string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	close(q.ready)
	q.ready = make(chan struct{})
	return nil
}

func (q *UnboundedQueue) Pop(ctx context.Context) (string, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, nil
		}
		wait := q.ready
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (q *UnboundedQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
