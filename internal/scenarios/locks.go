package scenarios

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/roach88/racelab/internal/coord"
	"github.com/roach88/racelab/internal/harness"
	"github.com/roach88/racelab/internal/resource"
	"github.com/roach88/racelab/internal/variant"
)

func lockTables() *variant.Table[resource.LockTable] {
	return variant.NewTable[resource.LockTable]("lock table").
		Register(variant.Buggy, func() resource.LockTable { return resource.NewFixedSlotTable(resource.DefaultFixedSlots) }).
		Register(variant.Fixed, func() resource.LockTable { return resource.NewShardedTable(0, 0) })
}

func lockPairs(first, second string) *variant.Table[resource.LockPair] {
	return variant.NewTable[resource.LockPair]("lock pair").
		Register(variant.Buggy, func() resource.LockPair { return resource.NewInconsistentPair(first, second) }).
		Register(variant.Fixed, func() resource.LockPair { return resource.NewOrderedPair(first, second) })
}

func init() {
	MustRegister(&harness.Scenario{
		Name:     "false-contention",
		Title:    "false contention in a fixed-size lock table",
		Summary:  "Object locks are striped over a handful of mutexes, so transactions on unrelated objects queue behind each other whenever their keys share a stripe.",
		Kind:     harness.KindRace,
		Resource: "lock table",
		Modes:    lockTables().Modes(),
		Params: []harness.Param{
			{Name: "workers", Kind: harness.ParamInt, Default: "8", Min: "1", Usage: "transactions, each on its own object"},
			{Name: "hold", Kind: harness.ParamDuration, Default: "25ms", Min: "1ms", Usage: "how long each transaction holds its lock"},
		},
		Plan: func(p harness.Params) coord.Plan {
			return coord.Plan{
				Checkpoints: []coord.Checkpoint{{Name: "start", Parties: p.Int("workers")}},
				Pauses:      []coord.Pause{{Name: "hold", Duration: p.Duration("hold")}},
			}
		},
		Build: buildFalseContention,
	})

	MustRegister(&harness.Scenario{
		Name:     "lock-order",
		Title:    "deadlock from inconsistent lock ordering",
		Summary:  "A writer locks the object store then the index while a compactor locks the index then the store. Each ends up holding one lock and waiting for the other.",
		Kind:     harness.KindDeadlock,
		Resource: "lock pair",
		Modes:    lockPairs("", "").Modes(),
		Timeout:  2 * time.Second,
		Plan: func(harness.Params) coord.Plan {
			return coord.Plan{Checkpoints: []coord.Checkpoint{{Name: "holding-one", Parties: 2}}}
		},
		Build: buildLockOrder,
	})
}

func buildFalseContention(b *harness.BuildEnv) (*harness.Setup, error) {
	workers := b.Params.Int("workers")
	hold := b.Params.Duration("hold")

	// Keys are chosen so the sharded layout gives each its own slot; the
	// undersized table cannot.
	keys := resource.DistinctSlotKeys(resource.NewShardedTable(0, 0), workers)
	if len(keys) < workers {
		return nil, &harness.ParamError{
			Name:   "workers",
			Value:  strconv.Itoa(workers),
			Reason: fmt.Sprintf("must be at most %d (distinct lock slots), got", len(keys)),
		}
	}
	table, err := lockTables().Select(b.Mode)
	if err != nil {
		return nil, err
	}
	monitor := resource.NewOwnershipMonitor()

	var mu sync.Mutex
	var wall time.Duration

	setup := &harness.Setup{
		State: func() map[string]any {
			mu.Lock()
			defer mu.Unlock()
			return map[string]any{
				"overlaps":   len(monitor.Violations()),
				"peak":       monitor.Peak(),
				"slots":      table.Slots(),
				"wall_time":  wall,
				"sequential": time.Duration(workers) * hold,
			}
		},
		// Any two keys sharing a slot push the wall time to at least two
		// holds.
		Invariant: harness.All(
			harness.NoOverlap("overlaps"),
			harness.MaxLatency("wall_time", 2*hold-hold/4),
		),
	}

	for i, key := range keys {
		var start time.Time
		setup.Actors = append(setup.Actors, harness.Actor{
			Name: fmt.Sprintf("tx-%d", i+1),
			Role: "transaction",
			Steps: []harness.Step{
				{Name: "start", Do: func(ctx context.Context, env *harness.Env) error {
					err := env.Reach(ctx, "start")
					start = time.Now()
					return err
				}},
				{Name: "execute", Do: func(ctx context.Context, env *harness.Env) error {
					release, err := table.Acquire(ctx, key)
					if err != nil {
						return err
					}
					defer release()
					env.Logf("locked object %d on slot %d after %s", key, table.Slot(key), time.Since(start).Round(time.Millisecond))

					if err := monitor.Enter(key, env.Actor); err != nil {
						env.Logf("%v", err)
					}
					defer monitor.Exit(key, env.Actor)
					return env.Pause(ctx, "hold")
				}},
				{Name: "finish", Do: func(context.Context, *harness.Env) error {
					elapsed := time.Since(start)
					mu.Lock()
					wall = max(wall, elapsed)
					mu.Unlock()
					return nil
				}},
			},
		})
	}
	return setup, nil
}

func buildLockOrder(b *harness.BuildEnv) (*harness.Setup, error) {
	pair, err := lockPairs("store", "index").Select(b.Mode)
	if err != nil {
		return nil, err
	}
	window := resource.RaceWindow(b.Window("holding-one"))

	critical := func(reversed bool, what string) harness.Step {
		return harness.Step{Name: what, Do: func(ctx context.Context, env *harness.Env) error {
			names := pair.Names()
			if reversed {
				names[0], names[1] = names[1], names[0]
			}
			env.Logf("needs %s then %s", names[0], names[1])
			return pair.WithBoth(ctx, reversed, window, func() error {
				env.Logf("holding both locks, %s done", what)
				return nil
			})
		}}
	}

	return &harness.Setup{
		Actors: []harness.Actor{
			{Name: "writer", Role: "writer", Steps: []harness.Step{critical(false, "write")}},
			{Name: "compactor", Role: "compactor", Steps: []harness.Step{critical(true, "compact")}},
		},
		Invariant: harness.AllSucceeded(),
	}, nil
}
