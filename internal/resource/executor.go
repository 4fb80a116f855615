package resource

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Job is work handed to an Executor.
type Job func(ctx context.Context)

// Executor runs jobs on a bounded number of slots.
type Executor interface {
	// Submit hands job to the executor and returns once it is accepted or
	// refused.
	Submit(ctx context.Context, name string, job Job) error
	// Wait blocks until every accepted job has finished or ctx ends.
	Wait(ctx context.Context) error
	// Dropped returns the names of refused jobs.
	Dropped() []string
}

type boundedExecutor struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu      sync.Mutex
	dropped []string
}

func newBoundedExecutor(slots int64) boundedExecutor {
	if slots <= 0 {
		slots = 1
	}
	return boundedExecutor{sem: semaphore.NewWeighted(slots)}
}

// start runs job on a slot the caller already holds.
func (e *boundedExecutor) start(ctx context.Context, job Job) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.sem.Release(1)
		job(ctx)
	}()
}

func (e *boundedExecutor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *boundedExecutor) Dropped() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.dropped...)
}

// BlockingExecutor waits for a free slot on Submit. One slow job occupying
// the only slot stalls every submitter behind it.
type BlockingExecutor struct {
	boundedExecutor
}

// NewBlockingExecutor returns an executor with the given number of slots.
func NewBlockingExecutor(slots int64) *BlockingExecutor {
	return &BlockingExecutor{boundedExecutor: newBoundedExecutor(slots)}
}

func (e *BlockingExecutor) Submit(ctx context.Context, name string, job Job) error {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("submit %s: %w", name, err)
	}
	e.start(ctx, job)
	return nil
}

// DroppingExecutor refuses a job immediately when no slot is free, so a
// submitter is never held up by someone else's slow job.
type DroppingExecutor struct {
	boundedExecutor
}

// NewDroppingExecutor returns an executor with the given number of slots.
func NewDroppingExecutor(slots int64) *DroppingExecutor {
	return &DroppingExecutor{boundedExecutor: newBoundedExecutor(slots)}
}

func (e *DroppingExecutor) Submit(ctx context.Context, name string, job Job) error {
	if !e.sem.TryAcquire(1) {
		e.mu.Lock()
		e.dropped = append(e.dropped, name)
		e.mu.Unlock()
		return fmt.Errorf("submit %s: %w", name, ErrExecutorFull)
	}
	e.start(ctx, job)
	return nil
}
