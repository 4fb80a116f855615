package coord

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNew(t *testing.T, plan Plan, opts ...Option) *Coordinator {
	t.Helper()
	c, err := New(plan, opts...)
	require.NoError(t, err)
	return c
}

func TestPlan_Validate(t *testing.T) {
	tests := []struct {
		name    string
		plan    Plan
		wantErr string
	}{
		{"empty ok", Plan{}, ""},
		{"zero parties", Plan{Checkpoints: []Checkpoint{{Name: "a", Parties: 0}}}, "parties"},
		{"duplicate", Plan{Checkpoints: []Checkpoint{{Name: "a", Parties: 1}}, Signals: []string{"a"}}, "already declared"},
		{"jitter not flaky", Plan{Jitters: []Jitter{{Name: "j", Max: time.Millisecond}}}, "not marked flaky"},
		{"jitter bad range", Plan{Flaky: true, Jitters: []Jitter{{Name: "j", Min: 2, Max: 1}}}, "invalid range"},
		{"negative pause", Plan{Pauses: []Pause{{Name: "p", Duration: -1}}}, "negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestReach_ReleasesAllPartiesTogether(t *testing.T) {
	c := mustNew(t, Plan{Checkpoints: []Checkpoint{{Name: "go", Parties: 3}}})
	ctx := context.Background()

	var passed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Reach(ctx, "early", "go"))
			passed.Add(1)
		}()
	}

	require.Eventually(t, func() bool { return c.Waiting("go") == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(0), passed.Load(), "nobody passes before the last party arrives")

	require.NoError(t, c.Reach(ctx, "last", "go"))
	wg.Wait()
	assert.Equal(t, int32(2), passed.Load())
	assert.Equal(t, 0, c.Waiting("go"))
}

func TestReach_Cyclic(t *testing.T) {
	c := mustNew(t, Plan{Checkpoints: []Checkpoint{{Name: "round", Parties: 2}}})
	ctx := context.Background()

	const rounds = 50
	var wg sync.WaitGroup
	for a := 0; a < 2; a++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				assert.NoError(t, c.Reach(ctx, "a", "round"))
			}
		}()
	}
	wg.Wait()
}

func TestReach_Undeclared(t *testing.T) {
	c := mustNew(t, Plan{})
	err := c.Reach(context.Background(), "w", "nope")

	var ue *UndeclaredError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "checkpoint", ue.Kind)
	assert.True(t, IsCoordinationFault(err))
}

func TestReach_ContextCancel(t *testing.T) {
	c := mustNew(t, Plan{Checkpoints: []Checkpoint{{Name: "never", Parties: 2}}})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Reach(ctx, "lonely", "never")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, IsCoordinationFault(err))
	assert.Equal(t, "never", PointOf(err))
}

func TestBreak_WakesWaitersWithOffender(t *testing.T) {
	c := mustNew(t, Plan{Checkpoints: []Checkpoint{{Name: "sync", Parties: 3}}})
	ctx := context.Background()

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { errs <- c.Reach(ctx, "survivor", "sync") }()
	}
	require.Eventually(t, func() bool { return c.Waiting("sync") == 2 }, time.Second, time.Millisecond)

	cause := errors.New("panic: boom")
	c.Break("crasher", cause)

	for i := 0; i < 2; i++ {
		err := <-errs
		var be *BrokenError
		require.True(t, errors.As(err, &be))
		assert.Equal(t, "crasher", be.By)
		assert.Equal(t, "sync", be.Point)
		assert.True(t, errors.Is(err, ErrBroken))
		assert.True(t, errors.Is(err, cause))
	}

	// Future waiters fail fast too.
	err := c.Reach(ctx, "late", "sync")
	assert.True(t, errors.Is(err, ErrBroken))
	assert.True(t, c.Broken())
}

func TestBreak_DoesNotUndoCompletedWaits(t *testing.T) {
	c := mustNew(t, Plan{Signals: []string{"ready"}, Checkpoints: []Checkpoint{{Name: "meet", Parties: 2}}})
	ctx := context.Background()

	require.NoError(t, c.Fire("firer", "ready"))

	released := make(chan error, 1)
	go func() { released <- c.Reach(ctx, "first", "meet") }()
	require.Eventually(t, func() bool { return c.Waiting("meet") == 1 }, time.Second, time.Millisecond)
	require.NoError(t, c.Reach(ctx, "second", "meet"))

	c.Break("quitter", errors.New("step failed"))

	assert.NoError(t, <-released)
	assert.NoError(t, c.Await(ctx, "late", "ready"), "a signal fired before the break stays fired")
	assert.ErrorIs(t, c.Reach(ctx, "third", "meet"), ErrBroken)
}

func TestSignal_FireAwait(t *testing.T) {
	c := mustNew(t, Plan{Signals: []string{"ready"}})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- c.Await(ctx, "waiter", "ready") }()

	select {
	case <-done:
		t.Fatal("await returned before fire")
	case <-time.After(10 * time.Millisecond):
	}

	require.NoError(t, c.Fire("firer", "ready"))
	require.NoError(t, <-done)

	// Already fired: returns immediately, and firing again is harmless.
	require.NoError(t, c.Fire("firer", "ready"))
	require.NoError(t, c.Await(ctx, "late", "ready"))
	assert.Equal(t, "ready", c.Position("late"))
}

func TestPause(t *testing.T) {
	c := mustNew(t, Plan{Pauses: []Pause{{Name: "settle", Duration: 15 * time.Millisecond}}})
	start := time.Now()
	require.NoError(t, c.Pause(context.Background(), "a", "settle"))
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)

	err := c.Pause(context.Background(), "a", "missing")
	assert.True(t, IsCoordinationFault(err))
}

func TestJitter_SeededIsReproducible(t *testing.T) {
	plan := Plan{Flaky: true, Jitters: []Jitter{{Name: "j", Min: 0, Max: 2 * time.Millisecond}}}
	ctx := context.Background()

	draw := func(seed uint64) []time.Duration {
		c := mustNew(t, plan, WithSeed(seed))
		assert.Equal(t, seed, c.Seed())
		var out []time.Duration
		for i := 0; i < 5; i++ {
			d, err := c.Jitter(ctx, "a", "j")
			require.NoError(t, err)
			assert.GreaterOrEqual(t, d, time.Duration(0))
			assert.LessOrEqual(t, d, 2*time.Millisecond)
			out = append(out, d)
		}
		return out
	}

	assert.Equal(t, draw(42), draw(42))
}
