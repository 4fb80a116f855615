package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchQueue_ConsumerPushesMoreThanCapacity(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	bounded := NewBoundedQueue(2)
	require.NoError(t, bounded.Push(ctx, "a"))
	require.NoError(t, bounded.Push(ctx, "b"))
	err := bounded.Push(ctx, "c")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "full queue (2/2)")

	unbounded := NewUnboundedQueue()
	for _, item := range []string{"a", "b", "c"} {
		require.NoError(t, unbounded.Push(context.Background(), item))
	}
	assert.Equal(t, 3, unbounded.Len())
	item, err := unbounded.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", item)
}

func TestUnboundedQueue_PopWaitsForPush(t *testing.T) {
	q := NewUnboundedQueue()
	got := make(chan string, 1)
	go func() {
		item, _ := q.Pop(context.Background())
		got <- item
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Push(context.Background(), "late"))

	select {
	case item := <-got:
		assert.Equal(t, "late", item)
	case <-time.After(time.Second):
		t.Fatal("pop never woke")
	}
}
