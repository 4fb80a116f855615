package resource

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Watermark hands out sequence numbers and tracks the highest contiguous
// sequence that has been notified. Waiters block until the mark reaches
// their sequence, so one sequence that is never notified stalls everyone
// behind it.
//
// Lock discipline: one mutex guards assignment, notification and the mark.
// Waiters never hold it while blocked.
type Watermark struct {
	mu       sync.Mutex
	next     uint64
	mark     uint64
	notified map[uint64]bool
	changed  chan struct{}
}

// NewWatermark returns a watermark whose first assigned sequence is 1.
func NewWatermark() *Watermark {
	return &Watermark{next: 1, notified: make(map[uint64]bool), changed: make(chan struct{})}
}

// AssignNext reserves the next sequence number.
func (w *Watermark) AssignNext() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	seq := w.next
	w.next++
	return seq
}

// Notify marks seq complete and advances the mark over any contiguous run
// of completed sequences.
func (w *Watermark) Notify(seq uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if seq == 0 || seq >= w.next {
		return fmt.Errorf("notify %d: %w", seq, ErrUnassigned)
	}
	if seq <= w.mark || w.notified[seq] {
		return fmt.Errorf("notify %d: %w", seq, ErrDuplicateNotify)
	}
	w.notified[seq] = true

	advanced := false
	for w.notified[w.mark+1] {
		delete(w.notified, w.mark+1)
		w.mark++
		advanced = true
	}
	if advanced {
		close(w.changed)
		w.changed = make(chan struct{})
	}
	return nil
}

// WaitFor blocks until the mark reaches seq. It returns ErrWaitTimeout
// after timeout, or the context's error if ctx ends first. A timeout <= 0
// waits only on ctx.
func (w *Watermark) WaitFor(ctx context.Context, seq uint64, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	for {
		w.mu.Lock()
		mark, wait := w.mark, w.changed
		w.mu.Unlock()
		if mark >= seq {
			return nil
		}

		select {
		case <-wait:
		case <-expired:
			return fmt.Errorf("wait for %d (mark %d): %w", seq, w.Mark(), ErrWaitTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Mark returns the highest contiguous notified sequence.
func (w *Watermark) Mark() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mark
}

// Unnotified returns assigned sequences that have not been notified, in
// ascending order.
func (w *Watermark) Unnotified() []uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []uint64
	for s := w.mark + 1; s < w.next; s++ {
		if !w.notified[s] {
			out = append(out, s)
		}
	}
	return out
}

// Sequencer commits a unit of work under a freshly assigned sequence.
type Sequencer interface {
	// Commit assigns a sequence, runs commit with it and returns the
	// sequence together with commit's error.
	Commit(ctx context.Context, commit func(ctx context.Context, seq uint64) error) (uint64, error)
}

// NotifyOnSuccess notifies the watermark only when commit succeeds. A
// failed commit leaves its sequence unnotified forever.
type NotifyOnSuccess struct {
	W *Watermark
}

func (s NotifyOnSuccess) Commit(ctx context.Context, commit func(ctx context.Context, seq uint64) error) (uint64, error) {
	seq := s.W.AssignNext()
	if err := commit(ctx, seq); err != nil {
		return seq, err
	}
	return seq, s.W.Notify(seq)
}

// NotifyAlways notifies the watermark on every exit path, success or not.
type NotifyAlways struct {
	W *Watermark
}

func (s NotifyAlways) Commit(ctx context.Context, commit func(ctx context.Context, seq uint64) error) (seq uint64, err error) {
	seq = s.W.AssignNext()
	defer func() {
		if nerr := s.W.Notify(seq); nerr != nil && err == nil {
			err = nerr
		}
	}()
	return seq, commit(ctx, seq)
}
