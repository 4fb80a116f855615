package resource

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/racelab/internal/coord"
)

func loadSettings(context.Context) (Settings, error) {
	return Settings{"region": "us-east-1"}, nil
}

func TestLoader_ConcurrentFirstUse(t *testing.T) {
	const callers = 4
	tests := []struct {
		name      string
		make      func(RaceWindow) Loader
		wantLoads int
	}{
		{"check then load", func(w RaceWindow) Loader { return NewCheckThenLoad(loadSettings, w) }, callers},
		{"double checked", func(w RaceWindow) Loader { return NewDoubleCheckedLoader(loadSettings, w) }, 1},
		{"once", func(w RaceWindow) Loader { return NewOnceLoader(loadSettings, w) }, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := tt.make(barrierWindow(t, callers))
			var wg sync.WaitGroup
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ctx := coord.WithActor(context.Background(), fmt.Sprintf("reader-%d", i))
					s, err := l.Get(ctx)
					assert.NoError(t, err)
					assert.Equal(t, "us-east-1", s["region"])
				}()
			}
			wg.Wait()
			assert.Equal(t, tt.wantLoads, l.Loads())
		})
	}
}

func TestLoader_ReturnsCopies(t *testing.T) {
	l := NewDoubleCheckedLoader(loadSettings, nil)
	s, _ := l.Get(context.Background())
	s["region"] = "mutated"
	s2, _ := l.Get(context.Background())
	assert.Equal(t, "us-east-1", s2["region"])
	assert.Equal(t, 1, l.Loads())
}
