package scenarios

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/racelab/internal/coord"
	"github.com/roach88/racelab/internal/harness"
	"github.com/roach88/racelab/internal/resource"
	"github.com/roach88/racelab/internal/variant"
)

func streamCaches() *variant.Table[resource.StreamCache] {
	return variant.NewTable[resource.StreamCache]("stream cache").
		Register(variant.Buggy, func() resource.StreamCache { return resource.NewLockedIOCache() }).
		Register(variant.Fixed, func() resource.StreamCache { return resource.NewCopyThenPersistCache() })
}

func init() {
	MustRegister(&harness.Scenario{
		Name:     "lock-across-io",
		Title:    "write lock held across a slow persist",
		Summary:  "A stream writer updates its cached data and persists it to disk while still holding the write lock. Every reader of the cache stalls for the length of the IO.",
		Kind:     harness.KindRace,
		Resource: "stream cache",
		Modes:    streamCaches().Modes(),
		Params: []harness.Param{
			{Name: "io", Kind: harness.ParamDuration, Default: "200ms", Min: "0s", Usage: "how long the persist takes"},
			{Name: "budget", Kind: harness.ParamDuration, Default: "50ms", Min: "0s", Usage: "latency allowed for a read"},
		},
		Plan: func(p harness.Params) coord.Plan {
			return coord.Plan{
				Signals: []string{"persisting"},
				Pauses:  []coord.Pause{{Name: "io", Duration: p.Duration("io")}},
			}
		},
		Build: buildLockAcrossIO,
	})
}

func buildLockAcrossIO(b *harness.BuildEnv) (*harness.Setup, error) {
	cache, err := streamCaches().Select(b.Mode)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var latency time.Duration

	return &harness.Setup{
		Actors: []harness.Actor{
			{Name: "writer", Role: "writer", Steps: []harness.Step{
				{Name: "write", Do: func(ctx context.Context, env *harness.Env) error {
					return cache.WriteAndPersist(ctx, []byte{10, 20, 30, 40, 50}, func(ctx context.Context, data []byte) error {
						env.Logf("persisting %d bytes", len(data))
						if err := env.Fire("persisting"); err != nil {
							return err
						}
						if err := env.Pause(ctx, "io"); err != nil {
							return err
						}
						env.Logf("persisted")
						return nil
					})
				}},
			}},
			{Name: "reader", Role: "reader", Steps: []harness.Step{
				{Name: "read", Do: func(ctx context.Context, env *harness.Env) error {
					if err := env.Await(ctx, "persisting"); err != nil {
						return err
					}
					start := time.Now()
					v := cache.Version()
					took := time.Since(start)
					mu.Lock()
					latency = took
					mu.Unlock()
					env.Logf("read version %d after %s", v, took.Round(time.Millisecond))
					return nil
				}},
			}},
		},
		State: func() map[string]any {
			mu.Lock()
			defer mu.Unlock()
			return map[string]any{"read_latency": latency, "version": cache.Version()}
		},
		Invariant: harness.MaxLatency("read_latency", b.Params.Duration("budget")),
	}, nil
}
