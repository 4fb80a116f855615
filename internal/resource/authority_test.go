package resource

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAuthority_ConflictingOrders(t *testing.T) {
	tests := []struct {
		name     string
		auth     Authority
		overlaps int
	}{
		{"unlocked", NewUnlockedAuthority(), 1},
		{"locking", NewLockingAuthority(NewGuardTable()), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mon := NewOwnershipMonitor()
			var admitted sync.WaitGroup
			admitted.Add(2)
			window := func(context.Context) error {
				admitted.Done()
				admitted.Wait()
				return nil
			}

			var wg sync.WaitGroup
			for _, order := range []string{"order-a", "order-b"} {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := tt.auth.Execute(context.Background(), order, "coin", window, func(context.Context) error {
						if err := mon.Enter(1, order); err != nil {
							time.Sleep(20 * time.Millisecond)
							return nil
						}
						defer mon.Exit(1, order)
						time.Sleep(20 * time.Millisecond)
						return nil
					})
					assert.NoError(t, err)
				}()
			}
			wg.Wait()
			assert.Len(t, mon.Violations(), tt.overlaps)
		})
	}
}

func TestUnlockedAuthority_CountsConflictsAfterAdmission(t *testing.T) {
	a := NewUnlockedAuthority()
	var admitted sync.WaitGroup
	admitted.Add(2)
	window := func(context.Context) error {
		admitted.Done()
		admitted.Wait()
		return nil
	}
	var wg sync.WaitGroup
	for _, order := range []string{"order-a", "order-b"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = a.Execute(context.Background(), order, "coin", window, func(context.Context) error { return nil })
		}()
	}
	wg.Wait()
	assert.Equal(t, 2, a.Conflicts())
}
