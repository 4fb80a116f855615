package scenarios

import (
	"context"
	"fmt"

	"github.com/roach88/racelab/internal/coord"
	"github.com/roach88/racelab/internal/harness"
	"github.com/roach88/racelab/internal/resource"
	"github.com/roach88/racelab/internal/variant"
)

func records(initial int64) *variant.Table[resource.Record] {
	return variant.NewTable[resource.Record]("versioned record").
		Register(variant.Buggy, func() resource.Record { return resource.NewLatestRecord(initial) }).
		Register(variant.Fixed, func() resource.Record { return resource.NewCheckedRecord(initial) })
}

func init() {
	MustRegister(&harness.Scenario{
		Name:     "version-race",
		Title:    "write against the latest version instead of the one read",
		Summary:  "Two writers read the same account version and both write back. Resolving every write to the latest version lets the second silently overwrite the first.",
		Kind:     harness.KindRace,
		Resource: "versioned record",
		Modes:    records(0).Modes(),
		Params: []harness.Param{
			{Name: "balance", Kind: harness.ParamInt, Default: "100", Usage: "starting balance"},
		},
		Plan: func(harness.Params) coord.Plan {
			return coord.Plan{Checkpoints: []coord.Checkpoint{{Name: "both-read", Parties: 2}}}
		},
		Build: buildVersionRace,
	})
}

func buildVersionRace(b *harness.BuildEnv) (*harness.Setup, error) {
	rec, err := records(int64(b.Params.Int("balance"))).Select(b.Mode)
	if err != nil {
		return nil, err
	}
	version := rec.Current().Version

	writer := func(name string, delta int64) harness.Actor {
		var seen resource.Snapshot
		return harness.Actor{Name: name, Role: "writer", Steps: []harness.Step{
			{Name: "read", Do: func(ctx context.Context, env *harness.Env) error {
				s, err := rec.ReadAt(version)
				if err != nil {
					return err
				}
				seen = s
				env.Logf("read balance %d at version %d", s.Value, s.Version)
				return env.Reach(ctx, "both-read")
			}},
			{Name: "write", Do: func(_ context.Context, env *harness.Env) error {
				s, err := rec.Write(seen.Version, seen.Value+delta)
				if err != nil {
					return fmt.Errorf("write %+d: %w", delta, err)
				}
				env.Logf("wrote balance %d, now version %d", s.Value, s.Version)
				return nil
			}},
		}}
	}

	return &harness.Setup{
		Actors: []harness.Actor{writer("deposit", 50), writer("withdraw", -30)},
		State: func() map[string]any {
			cur := rec.Current()
			return map[string]any{"version": cur.Version, "balance": cur.Value}
		},
		Invariant: harness.AtMostOneSuccess("writer"),
	}, nil
}
