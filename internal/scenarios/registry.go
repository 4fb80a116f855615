package scenarios

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/racelab/internal/coord"
	"github.com/roach88/racelab/internal/harness"
	"github.com/roach88/racelab/internal/resource"
	"github.com/roach88/racelab/internal/variant"
)

func broadcasters() *variant.Table[resource.Broadcaster] {
	return variant.NewTable[resource.Broadcaster]("connection registry").
		Register(variant.Buggy, func() resource.Broadcaster { return resource.HoldingBroadcaster{} }).
		Register(variant.Fixed, func() resource.Broadcaster { return resource.SnapshotBroadcaster{} })
}

func init() {
	MustRegister(&harness.Scenario{
		Name:     "rwlock-reentry",
		Title:    "read lock taken twice with a writer queued",
		Summary:  "A live-query broadcast holds the connection registry's read lock and checks each connection through the registry again. A new connection's writer queues up in between, and the second read waits behind the writer that waits behind the first.",
		Kind:     harness.KindDeadlock,
		Resource: "connection registry",
		Modes:    broadcasters().Modes(),
		Timeout:  2 * time.Second,
		Params: []harness.Param{
			{Name: "connections", Kind: harness.ParamInt, Default: "3", Min: "1", Usage: "registered connections to notify"},
		},
		Plan: func(harness.Params) coord.Plan {
			return coord.Plan{Signals: []string{"notifying"}}
		},
		Build: buildRWLockReentry,
	})
}

func buildRWLockReentry(b *harness.BuildEnv) (*harness.Setup, error) {
	bc, err := broadcasters().Select(b.Mode)
	if err != nil {
		return nil, err
	}
	n := b.Params.Int("connections")
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("conn-%d", i+1)
	}
	reg := resource.NewRegistry(ids...)

	var mu sync.Mutex
	var delivered int

	return &harness.Setup{
		Actors: []harness.Actor{
			{Name: "notifier", Role: "reader", Steps: []harness.Step{
				{Name: "broadcast", Do: func(ctx context.Context, env *harness.Env) error {
					first := true
					return bc.Broadcast(ctx, reg, func(ctx context.Context, id string) error {
						if first {
							first = false
							if err := env.Fire("notifying"); err != nil {
								return err
							}
							if err := reg.RWMutex().AwaitWriter(ctx); err != nil {
								return err
							}
						}
						live, err := reg.Contains(ctx, id)
						if err != nil {
							return err
						}
						if live {
							mu.Lock()
							delivered++
							mu.Unlock()
							env.Logf("notified %s", id)
						}
						return nil
					})
				}},
			}},
			{Name: "acceptor", Role: "writer", Steps: []harness.Step{
				{Name: "register", Do: func(ctx context.Context, env *harness.Env) error {
					if err := env.Await(ctx, "notifying"); err != nil {
						return err
					}
					if err := reg.Add(ctx, "conn-new"); err != nil {
						return err
					}
					env.Logf("registered conn-new")
					return nil
				}},
			}},
		},
		State: func() map[string]any {
			mu.Lock()
			defer mu.Unlock()
			return map[string]any{"delivered": delivered}
		},
		Invariant: harness.All(harness.AllSucceeded(), harness.CounterEquals("delivered", int64(n))),
	}, nil
}
