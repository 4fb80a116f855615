package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamCache_ReaderDuringPersist(t *testing.T) {
	tests := []struct {
		name    string
		cache   StreamCache
		blocked bool
	}{
		{"locked io", NewLockedIOCache(), true},
		{"copy then persist", NewCopyThenPersistCache(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done := make(chan uint64, 1)
			var readDuringPersist bool
			err := tt.cache.WriteAndPersist(context.Background(), []byte{1, 2, 3}, func(_ context.Context, data []byte) error {
				assert.Equal(t, []byte{1, 2, 3}, data)
				go func() { done <- tt.cache.Version() }()
				select {
				case v := <-done:
					readDuringPersist = true
					assert.Equal(t, uint64(1), v)
				case <-time.After(50 * time.Millisecond):
				}
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, !tt.blocked, readDuringPersist)

			if tt.blocked {
				// the reader gets in once persist returns
				assert.Equal(t, uint64(1), <-done)
			}
		})
	}
}
