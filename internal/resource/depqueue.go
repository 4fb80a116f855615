package resource

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// GenesisObject exists before any task runs.
const GenesisObject = "obj_0"

// Task is a unit of work that reads named input objects and produces named
// output objects.
type Task struct {
	ID      string
	Inputs  []string
	Outputs []string
	// Run is the task body. A nil Run always succeeds.
	Run func(ctx context.Context) error
}

// TaskStatus is where a task ended up.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
)

// TaskResult is the latest known state of a submitted task.
type TaskResult struct {
	ID     string
	Status TaskStatus
	Err    error
}

// TaskQueue executes tasks submitted concurrently by several actors.
type TaskQueue interface {
	// Submit hands task to the queue and returns its state on return: a
	// finished result, or pending if the queue parked it.
	Submit(ctx context.Context, task Task) TaskResult
	// Wait blocks until no task is running or parked, or ctx ends.
	Wait(ctx context.Context) error
	// Results returns every submitted task's state keyed by ID.
	Results() map[string]TaskResult
	// Order returns the IDs of succeeded tasks in completion order.
	Order() []string
	// Objects returns the objects that exist, sorted.
	Objects() []string
}

// queueState is the bookkeeping shared by both queues.
type queueState struct {
	mu      sync.Mutex
	objects map[string]bool
	results map[string]TaskResult
	order   []string
	running int
	pending []Task
	changed chan struct{}
}

func newQueueState() queueState {
	return queueState{
		objects: map[string]bool{GenesisObject: true},
		results: make(map[string]TaskResult),
		changed: make(chan struct{}),
	}
}

// missing returns inputs that do not exist yet. Caller holds mu.
func (q *queueState) missing(inputs []string) []string {
	var out []string
	for _, in := range inputs {
		if !q.objects[in] {
			out = append(out, in)
		}
	}
	return out
}

// finish records a task's outcome and publishes its outputs on success.
// Caller holds mu.
func (q *queueState) finish(t Task, err error) TaskResult {
	r := TaskResult{ID: t.ID, Status: TaskSucceeded}
	if err != nil {
		r.Status = TaskFailed
		r.Err = err
	} else {
		for _, out := range t.Outputs {
			q.objects[out] = true
		}
		q.order = append(q.order, t.ID)
	}
	q.results[t.ID] = r
	q.running--
	q.broadcast()
	return r
}

func (q *queueState) broadcast() {
	close(q.changed)
	q.changed = make(chan struct{})
}

func (q *queueState) Wait(ctx context.Context) error {
	for {
		q.mu.Lock()
		idle := q.running == 0 && len(q.pending) == 0
		wait := q.changed
		q.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (q *queueState) Results() map[string]TaskResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[string]TaskResult, len(q.results))
	for k, v := range q.results {
		out[k] = v
	}
	return out
}

func (q *queueState) Order() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.order...)
}

func (q *queueState) Objects() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.objects))
	for o := range q.objects {
		out = append(out, o)
	}
	sort.Strings(out)
	return out
}

func runBody(ctx context.Context, t Task) error {
	if t.Run == nil {
		return nil
	}
	return t.Run(ctx)
}

// EagerQueue runs every task the moment it is submitted without looking at
// its dependencies. A task whose inputs are not there yet fails with
// ErrMissingInput.
//
// Lock discipline: the mutex covers the input check and the result; the
// body runs unlocked.
type EagerQueue struct {
	queueState
}

// NewEagerQueue returns a queue holding only GenesisObject.
func NewEagerQueue() *EagerQueue {
	return &EagerQueue{queueState: newQueueState()}
}

func (q *EagerQueue) Submit(ctx context.Context, t Task) TaskResult {
	q.mu.Lock()
	q.running++
	if miss := q.missing(t.Inputs); len(miss) > 0 {
		defer q.mu.Unlock()
		return q.finish(t, fmt.Errorf("task %s needs %v: %w", t.ID, miss, ErrMissingInput))
	}
	q.mu.Unlock()

	err := runBody(ctx, t)

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.finish(t, err)
}

// DeferringQueue parks a task until all of its inputs exist. Whenever a
// task finishes, the goroutine that ran it rechecks the parked tasks and
// runs every one that became ready.
//
// Lock discipline: the mutex covers the readiness check, parking and
// publishing outputs, so a task is either seen as ready or parked before
// its producer publishes. It is never held while a body runs.
type DeferringQueue struct {
	queueState
}

// NewDeferringQueue returns a queue holding only GenesisObject.
func NewDeferringQueue() *DeferringQueue {
	return &DeferringQueue{queueState: newQueueState()}
}

func (q *DeferringQueue) Submit(ctx context.Context, t Task) TaskResult {
	q.mu.Lock()
	if len(q.missing(t.Inputs)) > 0 {
		q.pending = append(q.pending, t)
		r := TaskResult{ID: t.ID, Status: TaskPending}
		q.results[t.ID] = r
		q.mu.Unlock()
		return r
	}
	q.running++
	q.mu.Unlock()

	r := q.execute(ctx, t)
	q.drain(ctx)
	return r
}

func (q *DeferringQueue) execute(ctx context.Context, t Task) TaskResult {
	err := runBody(ctx, t)
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.finish(t, err)
}

// drain runs parked tasks that became ready until none are left.
func (q *DeferringQueue) drain(ctx context.Context) {
	for {
		q.mu.Lock()
		idx := -1
		for i, p := range q.pending {
			if len(q.missing(p.Inputs)) == 0 {
				idx = i
				break
			}
		}
		if idx < 0 {
			q.mu.Unlock()
			return
		}
		t := q.pending[idx]
		q.pending = append(q.pending[:idx], q.pending[idx+1:]...)
		q.running++
		q.mu.Unlock()

		q.execute(ctx, t)
	}
}

// Parked returns the IDs of tasks still waiting for inputs.
func (q *DeferringQueue) Parked() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.pending))
	for _, t := range q.pending {
		out = append(out, t.ID)
	}
	return out
}
