package scenarios

import (
	"context"
	"fmt"

	"github.com/roach88/racelab/internal/coord"
	"github.com/roach88/racelab/internal/harness"
	"github.com/roach88/racelab/internal/resource"
	"github.com/roach88/racelab/internal/variant"
)

func loaders(load resource.LoadFunc, window resource.RaceWindow) *variant.Table[resource.Loader] {
	return variant.NewTable[resource.Loader]("config loader").
		Register(variant.Buggy, func() resource.Loader { return resource.NewCheckThenLoad(load, window) }).
		Register(variant.Fixed, func() resource.Loader { return resource.NewDoubleCheckedLoader(load, window) }).
		Register(variant.Once, func() resource.Loader { return resource.NewOnceLoader(load, window) })
}

func init() {
	MustRegister(&harness.Scenario{
		Name:     "config-load",
		Title:    "redundant concurrent configuration loads",
		Summary:  "Handlers that start together all find the shared configuration missing and each load it again. Every extra load costs a round trip and can leave handlers with different copies.",
		Kind:     harness.KindRace,
		Resource: "loader",
		Modes:    loaders(nil, nil).Modes(),
		Params: []harness.Param{
			{Name: "readers", Kind: harness.ParamInt, Default: "4", Min: "1", Usage: "handlers reading the configuration on first use"},
		},
		Plan: func(p harness.Params) coord.Plan {
			return coord.Plan{Checkpoints: []coord.Checkpoint{{Name: "first-use", Parties: p.Int("readers")}}}
		},
		Build: buildConfigLoad,
	})
}

func buildConfigLoad(b *harness.BuildEnv) (*harness.Setup, error) {
	readers := b.Params.Int("readers")

	load := func(ctx context.Context) (resource.Settings, error) {
		b.Log(ctx, "loading settings from disk")
		return resource.Settings{"region": "us-east-1", "pool_size": "16", "checkpoint_interval": "10s"}, nil
	}
	loader, err := loaders(load, b.Window("first-use")).Select(b.Mode)
	if err != nil {
		return nil, err
	}

	read := harness.Step{Name: "read", Do: func(ctx context.Context, env *harness.Env) error {
		s, err := loader.Get(ctx)
		if err != nil {
			return err
		}
		env.Logf("using region %s with pool size %s", s["region"], s["pool_size"])
		return nil
	}}

	setup := &harness.Setup{
		State: func() map[string]any {
			return map[string]any{"loads": loader.Loads()}
		},
		Invariant: harness.StateEquals("loads", 1),
	}
	for i := 1; i <= readers; i++ {
		setup.Actors = append(setup.Actors, harness.Actor{
			Name:  fmt.Sprintf("handler-%d", i),
			Role:  "handler",
			Steps: []harness.Step{read},
		})
	}
	return setup, nil
}
