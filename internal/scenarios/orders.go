package scenarios

import (
	"context"

	"github.com/roach88/racelab/internal/coord"
	"github.com/roach88/racelab/internal/harness"
	"github.com/roach88/racelab/internal/resource"
	"github.com/roach88/racelab/internal/variant"
)

func authorities() *variant.Table[resource.Authority] {
	return variant.NewTable[resource.Authority]("object authority").
		Register(variant.Buggy, func() resource.Authority { return resource.NewUnlockedAuthority() }).
		Register(variant.Fixed, func() resource.Authority { return resource.NewLockingAuthority(resource.NewGuardTable()) })
}

func init() {
	MustRegister(&harness.Scenario{
		Name:     "conflicting-orders",
		Title:    "two orders execute on one owned object",
		Summary:  "Two orders spend the same owned object. The authority notes both as in flight but takes no object lock, so both execute at once and the conflict is only seen afterwards.",
		Kind:     harness.KindRace,
		Resource: "object authority",
		Modes:    authorities().Modes(),
		Params: []harness.Param{
			{Name: "processing", Kind: harness.ParamDuration, Default: "50ms", Min: "0s", Usage: "how long executing an order takes"},
		},
		Plan: func(p harness.Params) coord.Plan {
			return coord.Plan{
				Checkpoints: []coord.Checkpoint{{Name: "both-admitted", Parties: 2}},
				Pauses:      []coord.Pause{{Name: "processing", Duration: p.Duration("processing")}},
			}
		},
		Build: buildConflictingOrders,
	})
}

func buildConflictingOrders(b *harness.BuildEnv) (*harness.Setup, error) {
	auth, err := authorities().Select(b.Mode)
	if err != nil {
		return nil, err
	}
	mon := resource.NewOwnershipMonitor()
	const (
		object = "coin-0x5"
		key    = 5
	)

	order := func(name string) harness.Actor {
		return harness.Actor{Name: name, Role: "order", Steps: []harness.Step{
			{Name: "execute", Do: func(ctx context.Context, env *harness.Env) error {
				return auth.Execute(ctx, name, object, b.Window("both-admitted"), func(ctx context.Context) error {
					if err := mon.Enter(key, name); err != nil {
						env.Logf("executing anyway: %v", err)
					} else {
						defer mon.Exit(key, name)
						env.Logf("executing against %s", object)
					}
					return env.Pause(ctx, "processing")
				})
			}},
		}}
	}

	return &harness.Setup{
		Actors: []harness.Actor{order("order-a"), order("order-b")},
		State: func() map[string]any {
			return map[string]any{"overlaps": len(mon.Violations()), "conflicts": auth.Conflicts()}
		},
		Invariant: harness.NoOverlap("overlaps"),
	}, nil
}
