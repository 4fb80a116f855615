// Package coord forces a specific interleaving of concurrent actors.
//
// A Coordinator is built from a Plan and exposes the plan's named
// synchronization points:
//
//   - Reach: a cyclic rendezvous barrier. Every caller blocks until the
//     checkpoint's declared number of parties have arrived, then all
//     proceed together.
//   - Fire / Await: a one-shot signal.
//   - Pause: a declared fixed delay.
//   - Jitter: a bounded randomized delay, only available in plans marked
//     Flaky. The source is seeded so a failing run can be replayed.
//
// Barriers are the default tool. Delays exist for scenarios whose root cause
// is real OS or network timing.
//
// When an actor panics or quits on an error the driver calls Break; every current and future
// waiter then returns a *BrokenError naming the offending actor instead of
// hanging.
package coord

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Coordinator hands out the synchronization points declared in a Plan.
//
// Thread-safety: all methods are safe for concurrent use.
type Coordinator struct {
	plan     Plan
	barriers map[string]*barrier
	signals  map[string]*signal
	pauses   map[string]time.Duration
	jitters  map[string]Jitter

	rngMu sync.Mutex
	rng   *rand.Rand
	seed  uint64

	breakOnce sync.Once
	broken    chan struct{}
	brokenBy  string
	cause     error

	posMu     sync.Mutex
	positions map[string]string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithSeed fixes the jitter source.
func WithSeed(seed uint64) Option {
	return func(c *Coordinator) {
		c.seed = seed
	}
}

// New validates plan and builds a Coordinator for one run.
func New(plan Plan, opts ...Option) (*Coordinator, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	c := &Coordinator{
		plan:      plan,
		barriers:  make(map[string]*barrier, len(plan.Checkpoints)),
		signals:   make(map[string]*signal, len(plan.Signals)),
		pauses:    make(map[string]time.Duration, len(plan.Pauses)),
		jitters:   make(map[string]Jitter, len(plan.Jitters)),
		broken:    make(chan struct{}),
		positions: make(map[string]string),
		seed:      uint64(time.Now().UnixNano()),
	}
	for _, o := range opts {
		o(c)
	}
	c.rng = rand.New(rand.NewPCG(c.seed, c.seed^0x9e3779b97f4a7c15))

	for _, cp := range plan.Checkpoints {
		c.barriers[cp.Name] = newBarrier(cp.Name, cp.Parties)
	}
	for _, s := range plan.Signals {
		c.signals[s] = &signal{fired: make(chan struct{})}
	}
	for _, p := range plan.Pauses {
		c.pauses[p.Name] = p.Duration
	}
	for _, j := range plan.Jitters {
		c.jitters[j.Name] = j
	}
	return c, nil
}

// Seed returns the seed of the jitter source.
func (c *Coordinator) Seed() uint64 {
	return c.seed
}

// Reach blocks actor at the named checkpoint until all parties arrive, the
// coordinator is broken, or ctx ends.
func (c *Coordinator) Reach(ctx context.Context, actor, checkpoint string) error {
	b, ok := c.barriers[checkpoint]
	if !ok {
		return &UndeclaredError{Kind: "checkpoint", Name: checkpoint, Actor: actor}
	}
	c.setPosition(actor, checkpoint)

	if err := c.brokenErr(actor, checkpoint); err != nil {
		return err
	}

	release := b.arrive()
	select {
	case <-release:
		return nil
	case <-c.broken:
		// A generation completed before the break still counts.
		select {
		case <-release:
			return nil
		default:
		}
		return c.brokenErr(actor, checkpoint)
	case <-ctx.Done():
		return &WaitError{Actor: actor, Point: checkpoint, Err: ctx.Err()}
	}
}

// Fire releases every current and future Await on the named signal.
// Firing twice is a no-op.
func (c *Coordinator) Fire(actor, name string) error {
	s, ok := c.signals[name]
	if !ok {
		return &UndeclaredError{Kind: "signal", Name: name, Actor: actor}
	}
	s.once.Do(func() { close(s.fired) })
	return nil
}

// Await blocks until the named signal fires, the coordinator is broken, or
// ctx ends.
func (c *Coordinator) Await(ctx context.Context, actor, name string) error {
	s, ok := c.signals[name]
	if !ok {
		return &UndeclaredError{Kind: "signal", Name: name, Actor: actor}
	}
	c.setPosition(actor, name)

	select {
	case <-s.fired:
		return nil
	default:
	}
	select {
	case <-s.fired:
		return nil
	case <-c.broken:
		select {
		case <-s.fired:
			return nil
		default:
		}
		return c.brokenErr(actor, name)
	case <-ctx.Done():
		return &WaitError{Actor: actor, Point: name, Err: ctx.Err()}
	}
}

// Pause sleeps for the declared duration or until ctx ends.
func (c *Coordinator) Pause(ctx context.Context, actor, name string) error {
	d, ok := c.pauses[name]
	if !ok {
		return &UndeclaredError{Kind: "pause", Name: name, Actor: actor}
	}
	c.setPosition(actor, name)
	return sleep(ctx, actor, name, d)
}

// Jitter sleeps for a random duration in the declared range and returns it.
func (c *Coordinator) Jitter(ctx context.Context, actor, name string) (time.Duration, error) {
	j, ok := c.jitters[name]
	if !ok {
		return 0, &UndeclaredError{Kind: "jitter", Name: name, Actor: actor}
	}
	c.setPosition(actor, name)

	d := j.Min
	if span := j.Max - j.Min; span > 0 {
		c.rngMu.Lock()
		d += time.Duration(c.rng.Int64N(int64(span) + 1))
		c.rngMu.Unlock()
	}
	return d, sleep(ctx, actor, name, d)
}

// Break marks the coordinator broken by actor. Every waiter, current and
// future, returns a *BrokenError. Only the first call has any effect.
func (c *Coordinator) Break(actor string, cause error) {
	c.breakOnce.Do(func() {
		c.brokenBy = actor
		c.cause = cause
		close(c.broken)
	})
}

// Broken reports whether Break has been called.
func (c *Coordinator) Broken() bool {
	select {
	case <-c.broken:
		return true
	default:
		return false
	}
}

// Position returns the last synchronization point actor used, or "".
func (c *Coordinator) Position(actor string) string {
	c.posMu.Lock()
	defer c.posMu.Unlock()
	return c.positions[actor]
}

// Waiting returns how many parties are currently blocked at checkpoint.
func (c *Coordinator) Waiting(checkpoint string) int {
	b, ok := c.barriers[checkpoint]
	if !ok {
		return 0
	}
	return b.waiting()
}

func (c *Coordinator) setPosition(actor, point string) {
	c.posMu.Lock()
	c.positions[actor] = point
	c.posMu.Unlock()
}

func (c *Coordinator) brokenErr(actor, point string) error {
	select {
	case <-c.broken:
		return &BrokenError{Actor: actor, Point: point, By: c.brokenBy, Cause: c.cause}
	default:
		return nil
	}
}

func sleep(ctx context.Context, actor, name string, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return &WaitError{Actor: actor, Point: name, Err: ctx.Err()}
	}
}

// barrier is a cyclic rendezvous. Each generation has its own release
// channel; the last arrival closes it and starts the next generation.
type barrier struct {
	name    string
	parties int

	mu      sync.Mutex
	arrived int
	release chan struct{}
}

func newBarrier(name string, parties int) *barrier {
	return &barrier{name: name, parties: parties, release: make(chan struct{})}
}

// arrive registers one party and returns the channel that closes when the
// current generation is complete.
func (b *barrier) arrive() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := b.release
	b.arrived++
	if b.arrived == b.parties {
		close(ch)
		b.arrived = 0
		b.release = make(chan struct{})
	}
	return ch
}

func (b *barrier) waiting() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.arrived
}

type signal struct {
	once  sync.Once
	fired chan struct{}
}
