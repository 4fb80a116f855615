package scenarios

import (
	"context"
	"errors"

	"github.com/roach88/racelab/internal/coord"
	"github.com/roach88/racelab/internal/harness"
	"github.com/roach88/racelab/internal/resource"
	"github.com/roach88/racelab/internal/variant"
)

var errDiskFull = errors.New("write batch: disk full")

func sequencers(w *resource.Watermark) *variant.Table[resource.Sequencer] {
	return variant.NewTable[resource.Sequencer]("sequencer").
		Register(variant.Buggy, func() resource.Sequencer { return resource.NotifyOnSuccess{W: w} }).
		Register(variant.Fixed, func() resource.Sequencer { return resource.NotifyAlways{W: w} })
}

func init() {
	MustRegister(&harness.Scenario{
		Name:     "notifier-gap",
		Title:    "missing notification after a failed commit",
		Summary:  "Writers commit under increasing sequence numbers and readers wait for the committed watermark. A failed commit skips its notification, and the watermark never moves past it.",
		Kind:     harness.KindRace,
		Resource: "watermark",
		Modes:    sequencers(nil).Modes(),
		Params: []harness.Param{
			{Name: "wait", Kind: harness.ParamDuration, Default: "200ms", Min: "0s", Usage: "how long the reader waits for the watermark"},
		},
		Plan: func(harness.Params) coord.Plan {
			return coord.Plan{Signals: []string{"first-assigned", "second-committed"}}
		},
		Build: buildNotifierGap,
	})
}

func buildNotifierGap(b *harness.BuildEnv) (*harness.Setup, error) {
	w := resource.NewWatermark()
	seqr, err := sequencers(w).Select(b.Mode)
	if err != nil {
		return nil, err
	}
	wait := b.Params.Duration("wait")

	var target uint64

	return &harness.Setup{
		Actors: []harness.Actor{
			{Name: "writer-1", Role: "writer", Steps: []harness.Step{{Name: "commit", Do: func(ctx context.Context, env *harness.Env) error {
				seq, err := seqr.Commit(ctx, func(_ context.Context, seq uint64) error {
					env.Logf("committing batch %d", seq)
					if err := env.Fire("first-assigned"); err != nil {
						return err
					}
					return errDiskFull
				})
				if errors.Is(err, errDiskFull) {
					env.Logf("batch %d failed: %v", seq, err)
					return nil
				}
				return err
			}}}},
			{Name: "writer-2", Role: "writer", Steps: []harness.Step{
				{Name: "wait", Do: func(ctx context.Context, env *harness.Env) error { return env.Await(ctx, "first-assigned") }},
				{Name: "commit", Do: func(ctx context.Context, env *harness.Env) error {
					seq, err := seqr.Commit(ctx, func(_ context.Context, seq uint64) error {
						env.Logf("committing batch %d", seq)
						return nil
					})
					if err != nil {
						return err
					}
					target = seq
					env.Logf("batch %d committed", seq)
					return env.Fire("second-committed")
				}},
			}},
			{Name: "reader", Role: "reader", Steps: []harness.Step{
				{Name: "wait", Do: func(ctx context.Context, env *harness.Env) error { return env.Await(ctx, "second-committed") }},
				{Name: "read", Do: func(ctx context.Context, env *harness.Env) error {
					if err := w.WaitFor(ctx, target, wait); err != nil {
						return err
					}
					env.Logf("watermark reached %d", target)
					return nil
				}},
			}},
		},
		State: func() map[string]any {
			return map[string]any{"mark": w.Mark(), "unnotified": len(w.Unnotified())}
		},
		Invariant: harness.All(harness.AllSucceeded(), harness.StateEquals("unnotified", 0)),
	}, nil
}
