package scenarios

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/racelab/internal/coord"
	"github.com/roach88/racelab/internal/harness"
	"github.com/roach88/racelab/internal/resource"
	"github.com/roach88/racelab/internal/variant"
)

func fetchQueues(capacity int) *variant.Table[resource.FetchQueue] {
	return variant.NewTable[resource.FetchQueue]("fetch queue").
		Register(variant.Buggy, func() resource.FetchQueue { return resource.NewBoundedQueue(capacity) }).
		Register(variant.Fixed, func() resource.FetchQueue { return resource.NewUnboundedQueue() })
}

func init() {
	MustRegister(&harness.Scenario{
		Name:     "recursive-fetch",
		Title:    "fetcher blocked on its own bounded queue",
		Summary:  "The only consumer of a bounded fetch queue pushes a certificate's missing parents back onto that queue. With more parents than free room, the push waits for a pop that only the blocked fetcher could make.",
		Kind:     harness.KindDeadlock,
		Resource: "fetch queue",
		Modes:    fetchQueues(1).Modes(),
		Timeout:  2 * time.Second,
		Params: []harness.Param{
			{Name: "capacity", Kind: harness.ParamInt, Default: "2", Min: "1", Usage: "room in the bounded queue"},
			{Name: "parents", Kind: harness.ParamInt, Default: "4", Min: "0", Usage: "missing parents of the certificate"},
		},
		Plan: func(harness.Params) coord.Plan {
			return coord.Plan{Signals: []string{"root-queued"}}
		},
		Build: buildRecursiveFetch,
	})
}

func buildRecursiveFetch(b *harness.BuildEnv) (*harness.Setup, error) {
	queue, err := fetchQueues(b.Params.Int("capacity")).Select(b.Mode)
	if err != nil {
		return nil, err
	}
	parents := b.Params.Int("parents")
	const root = "cert"
	var fetched []string

	return &harness.Setup{
		Actors: []harness.Actor{
			{Name: "synchronizer", Role: "producer", Steps: []harness.Step{
				{Name: "queue-root", Do: func(ctx context.Context, env *harness.Env) error {
					if err := queue.Push(ctx, root); err != nil {
						return err
					}
					env.Logf("queued %s", root)
					return env.Fire("root-queued")
				}},
			}},
			{Name: "fetcher", Role: "consumer", Steps: []harness.Step{
				{Name: "fetch", Do: func(ctx context.Context, env *harness.Env) error {
					if err := env.Await(ctx, "root-queued"); err != nil {
						return err
					}
					for queue.Len() > 0 {
						item, err := queue.Pop(ctx)
						if err != nil {
							return err
						}
						fetched = append(fetched, item)
						if strings.Contains(item, "/") {
							continue
						}
						env.Logf("fetched %s, queueing %d parents", item, parents)
						for i := 1; i <= parents; i++ {
							if err := queue.Push(ctx, fmt.Sprintf("%s/parent-%d", item, i)); err != nil {
								return err
							}
						}
					}
					env.Logf("ancestry complete")
					return nil
				}},
			}},
		},
		State: func() map[string]any {
			return map[string]any{"fetched": len(fetched), "queued": queue.Len()}
		},
		Invariant: harness.CounterEquals("fetched", int64(parents+1)),
	}, nil
}
