package scenarios

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/racelab/internal/coord"
	"github.com/roach88/racelab/internal/harness"
	"github.com/roach88/racelab/internal/resource"
	"github.com/roach88/racelab/internal/variant"
)

var (
	errOutOfGas        = errors.New("execution failed: out of gas")
	errCheckpointWrite = errors.New("checkpoint write failed")
)

func scopes(t *resource.GuardTable) *variant.Table[resource.Scope] {
	return variant.NewTable[resource.Scope]("scoped guard").
		Register(variant.Buggy, func() resource.Scope { return resource.SuccessOnlyScope{Table: t} }).
		Register(variant.Fixed, func() resource.Scope { return resource.DeferredScope{Table: t} })
}

func init() {
	MustRegister(&harness.Scenario{
		Name:     "lock-leak",
		Title:    "object lock leaked on a failed order",
		Summary:  "An order locks its object and fails during execution. The lock is only released on success, so the next order for the same object waits forever.",
		Kind:     harness.KindDeadlock,
		Resource: "scoped guard",
		Modes:    scopes(nil).Modes(),
		Timeout:  2 * time.Second,
		Plan: func(harness.Params) coord.Plan {
			return coord.Plan{Signals: []string{"first-done"}}
		},
		Build: buildLockLeak,
	})

	MustRegister(&harness.Scenario{
		Name:     "stale-guard",
		Title:    "region guard kept after the procedure returns",
		Summary:  "Procedures guard their region while they run. One fails, returns to its caller and leaves its guard behind, so the region looks busy long after nobody is using it.",
		Kind:     harness.KindRace,
		Resource: "scoped guard",
		Modes:    scopes(nil).Modes(),
		Params: []harness.Param{
			{Name: "procedures", Kind: harness.ParamInt, Default: "3", Min: "1", Usage: "concurrent procedures, each on its own region"},
			{Name: "failing", Kind: harness.ParamInt, Default: "2", Min: "0", Usage: "which procedure fails (0 for none)"},
		},
		Plan: func(p harness.Params) coord.Plan {
			return coord.Plan{Checkpoints: []coord.Checkpoint{{Name: "guards-taken", Parties: p.Int("procedures")}}}
		},
		Build: buildStaleGuard,
	})
}

func buildLockLeak(b *harness.BuildEnv) (*harness.Setup, error) {
	table := resource.NewGuardTable()
	scope, err := scopes(table).Select(b.Mode)
	if err != nil {
		return nil, err
	}
	const object = "obj_1"

	order := func(name string, fail error) func(ctx context.Context, env *harness.Env) error {
		return func(ctx context.Context, env *harness.Env) error {
			err := scope.Run(ctx, object, name, func(context.Context) error {
				env.Logf("locked %s", object)
				return fail
			})
			switch {
			case err == nil:
				env.Logf("order executed on %s", object)
			case errors.Is(err, fail):
				env.Logf("order rejected: %v", err)
			default:
				return err
			}
			return nil
		}
	}

	return &harness.Setup{
		Actors: []harness.Actor{
			{Name: "order-1", Role: "order", Steps: []harness.Step{
				{Name: "execute", Do: order("order-1", errOutOfGas)},
				{Name: "signal", Do: func(_ context.Context, env *harness.Env) error { return env.Fire("first-done") }},
			}},
			{Name: "order-2", Role: "order", Steps: []harness.Step{
				{Name: "wait", Do: func(ctx context.Context, env *harness.Env) error { return env.Await(ctx, "first-done") }},
				{Name: "execute", Do: order("order-2", nil)},
			}},
		},
		State: func() map[string]any {
			return map[string]any{"held": table.Held()}
		},
		Invariant: harness.All(harness.AllSucceeded(), harness.StateEquals("held", []string{})),
	}, nil
}

func buildStaleGuard(b *harness.BuildEnv) (*harness.Setup, error) {
	n := b.Params.Int("procedures")
	failing := b.Params.Int("failing")
	table := resource.NewGuardTable()
	scope, err := scopes(table).Select(b.Mode)
	if err != nil {
		return nil, err
	}

	setup := &harness.Setup{
		State: func() map[string]any {
			return map[string]any{"held": table.Held()}
		},
		Invariant: harness.StateEquals("held", []string{}),
	}
	for i := 1; i <= n; i++ {
		name := fmt.Sprintf("proc-%d", i)
		region := fmt.Sprintf("region-%d", i)
		var fail error
		if i == failing {
			fail = errCheckpointWrite
		}
		setup.Actors = append(setup.Actors, harness.Actor{
			Name: name,
			Role: "procedure",
			Steps: []harness.Step{{Name: "run", Do: func(ctx context.Context, env *harness.Env) error {
				err := scope.Run(ctx, region, name, func(ctx context.Context) error {
					if err := env.Reach(ctx, "guards-taken"); err != nil {
						return err
					}
					env.Logf("guarding %s", region)
					return fail
				})
				if fail != nil && errors.Is(err, fail) {
					env.Logf("procedure returned: %v", err)
					return nil
				}
				if err == nil {
					env.Logf("procedure returned")
				}
				return err
			}}},
		})
	}
	return setup, nil
}
