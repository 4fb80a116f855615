package resource

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// crossPaths runs one caller on each access path through a barrier window
// and returns their errors.
func crossPaths(t *testing.T, p LockPair, timeout time.Duration) []error {
	t.Helper()
	window := barrierWindow(t, 2)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, reversed := range []bool{false, true} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = p.WithBoth(ctx, reversed, window, func() error { return nil })
		}()
	}
	wg.Wait()
	return errs
}

func TestOrderedPair_NoDeadlock(t *testing.T) {
	p := NewOrderedPair("numbers", "blocks")
	assert.Equal(t, [2]string{"numbers", "blocks"}, p.Names())
	for _, err := range crossPaths(t, p, time.Second) {
		assert.NoError(t, err)
	}
	first, second := p.Held()
	assert.False(t, first)
	assert.False(t, second)
}

func TestInconsistentPair_DeadlocksUntilCancelled(t *testing.T) {
	p := NewInconsistentPair("numbers", "blocks")
	errs := crossPaths(t, p, 30*time.Millisecond)
	for _, err := range errs {
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}

	// Both callers unwound and released what they held.
	first, second := p.Held()
	assert.False(t, first)
	assert.False(t, second)
}
