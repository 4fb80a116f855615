package scenarios

import (
	"context"
	"fmt"

	"github.com/roach88/racelab/internal/coord"
	"github.com/roach88/racelab/internal/harness"
	"github.com/roach88/racelab/internal/resource"
	"github.com/roach88/racelab/internal/variant"
)

const readWindow = "read-window"

func counterTable(window resource.RaceWindow) *variant.Table[resource.Counter] {
	return variant.NewTable[resource.Counter]("counter").
		Register(variant.Buggy, func() resource.Counter { return resource.NewRacyCounter(window) }).
		Register(variant.Fixed, func() resource.Counter { return resource.NewMutexCounter(window) }).
		Register(variant.Atomic, func() resource.Counter { return resource.NewAtomicCounter(window) })
}

func init() {
	MustRegister(&harness.Scenario{
		Name:     "lost-update",
		Title:    "lost update on a shared counter",
		Summary:  "Concurrent clients add to a pending-order total with a read, a release of the lock, and a write. Increments that land between another client's read and write are overwritten.",
		Kind:     harness.KindRace,
		Resource: "counter",
		Modes:    counterTable(nil).Modes(),
		Params: []harness.Param{
			{Name: "actors", Kind: harness.ParamInt, Default: "10", Min: "1", Usage: "concurrent clients"},
			{Name: "increments", Kind: harness.ParamInt, Default: "100", Min: "1", Usage: "increments per client"},
			{Name: "by", Kind: harness.ParamInt, Default: "1", Min: "1", Usage: "amount added per increment"},
			{Name: "stress", Kind: harness.ParamBool, Default: "false", Usage: "drop the barrier and rely on the scheduler"},
		},
		Plan: func(p harness.Params) coord.Plan {
			return coord.Plan{Checkpoints: []coord.Checkpoint{{Name: readWindow, Parties: p.Int("actors")}}}
		},
		Build: buildLostUpdate,
	})
}

func buildLostUpdate(b *harness.BuildEnv) (*harness.Setup, error) {
	actors := b.Params.Int("actors")
	increments := b.Params.Int("increments")
	by := int64(b.Params.Int("by"))

	var window resource.RaceWindow
	if !b.Params.Bool("stress") {
		window = b.Window(readWindow)
	}
	counter, err := counterTable(window).Select(b.Mode)
	if err != nil {
		return nil, err
	}
	want := int64(actors) * int64(increments) * by

	add := harness.Step{Name: "increment", Do: func(ctx context.Context, env *harness.Env) error {
		var last resource.Update
		for i := 0; i < increments; i++ {
			u, err := counter.Increment(ctx, by)
			if err != nil {
				return fmt.Errorf("increment %d: %w", i+1, err)
			}
			if i == 0 {
				env.Logf("first increment read %d, wrote %d", u.Read, u.Wrote)
			}
			last = u
		}
		env.Logf("added %d over %d increments (last read %d, wrote %d)", by*int64(increments), increments, last.Read, last.Wrote)
		return nil
	}}

	setup := &harness.Setup{
		State: func() map[string]any {
			return map[string]any{"counter": counter.Read(), "expected": want}
		},
		Invariant: harness.CounterEquals("counter", want),
	}
	for i := 1; i <= actors; i++ {
		setup.Actors = append(setup.Actors, harness.Actor{
			Name:  fmt.Sprintf("client-%d", i),
			Role:  "client",
			Steps: []harness.Step{add},
		})
	}
	return setup, nil
}
