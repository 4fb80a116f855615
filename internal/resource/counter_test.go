package resource

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/racelab/internal/coord"
)

const (
	testActors     = 10
	testIncrements = 100
)

// barrierWindow parks every actor at a shared checkpoint.
func barrierWindow(t *testing.T, parties int) RaceWindow {
	t.Helper()
	c, err := coord.New(coord.Plan{Checkpoints: []coord.Checkpoint{{Name: "window", Parties: parties}}})
	require.NoError(t, err)
	return func(ctx context.Context) error {
		return c.Reach(ctx, coord.ActorFrom(ctx), "window")
	}
}

func hammer(t *testing.T, c Counter) {
	t.Helper()
	var wg sync.WaitGroup
	for i := 0; i < testActors; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := coord.WithActor(context.Background(), fmt.Sprintf("actor-%d", i))
			for j := 0; j < testIncrements; j++ {
				_, err := c.Increment(ctx, 1)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
}

func TestCounter_FixedVariantsAreExact(t *testing.T) {
	tests := []struct {
		name string
		make func(RaceWindow) Counter
	}{
		{"mutex", func(w RaceWindow) Counter { return NewMutexCounter(w) }},
		{"atomic", func(w RaceWindow) Counter { return NewAtomicCounter(w) }},
	}
	for _, tt := range tests {
		t.Run(tt.name+"/no window", func(t *testing.T) {
			c := tt.make(nil)
			hammer(t, c)
			assert.Equal(t, int64(testActors*testIncrements), c.Read())
		})
		t.Run(tt.name+"/barrier window", func(t *testing.T) {
			c := tt.make(barrierWindow(t, testActors))
			hammer(t, c)
			assert.Equal(t, int64(testActors*testIncrements), c.Read())
		})
	}
}

func TestRacyCounter_BarrierLosesUpdates(t *testing.T) {
	c := NewRacyCounter(barrierWindow(t, testActors))
	hammer(t, c)

	// Every round all actors read the same value before anyone writes, so
	// each round adds exactly one.
	assert.Equal(t, int64(testIncrements), c.Read())
	assert.Less(t, c.Read(), int64(testActors*testIncrements))
}

func TestRacyCounter_StressNeverOvercounts(t *testing.T) {
	for trial := 0; trial < 5; trial++ {
		c := NewRacyCounter(nil)
		hammer(t, c)
		assert.LessOrEqual(t, c.Read(), int64(testActors*testIncrements))
		assert.Positive(t, c.Read())
	}
}

func TestRacyCounter_UpdateReportsReadAndWrite(t *testing.T) {
	c := NewRacyCounter(nil)
	u, err := c.Increment(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, Update{Read: 0, Wrote: 5}, u)

	u, err = NewAtomicCounter(nil).Increment(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, Update{Read: 0, Wrote: 3}, u)
}

func TestRacyCounter_WindowErrorAbortsWrite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewRacyCounter(func(ctx context.Context) error { return ctx.Err() })

	_, err := c.Increment(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), c.Read())
}

func TestMutex_LockHonorsContext(t *testing.T) {
	m := NewMutex()
	require.NoError(t, m.Lock(context.Background()))
	assert.True(t, m.Locked())
	assert.False(t, m.TryLock())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Lock(ctx), context.Canceled)

	m.Unlock()
	assert.False(t, m.Locked())
	assert.True(t, m.TryLock())
	m.Unlock()

	assert.Panics(t, func() { m.Unlock() })
}
