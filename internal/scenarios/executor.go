package scenarios

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/roach88/racelab/internal/coord"
	"github.com/roach88/racelab/internal/harness"
	"github.com/roach88/racelab/internal/resource"
	"github.com/roach88/racelab/internal/variant"
)

func executors(slots int64) *variant.Table[resource.Executor] {
	return variant.NewTable[resource.Executor]("executor").
		Register(variant.Buggy, func() resource.Executor { return resource.NewBlockingExecutor(slots) }).
		Register(variant.Fixed, func() resource.Executor { return resource.NewDroppingExecutor(slots) })
}

func init() {
	MustRegister(&harness.Scenario{
		Name:     "head-of-line",
		Title:    "head-of-line blocking on a full executor",
		Summary:  "A slow checkpoint upload occupies the only executor slot. A latency-sensitive heartbeat sent after it blocks until the upload finishes instead of being refused at once.",
		Kind:     harness.KindRace,
		Resource: "executor",
		Modes:    executors(1).Modes(),
		Params: []harness.Param{
			{Name: "slow", Kind: harness.ParamDuration, Default: "200ms", Min: "0s", Usage: "how long the slow job runs"},
			{Name: "budget", Kind: harness.ParamDuration, Default: "50ms", Min: "0s", Usage: "latency allowed for a submit"},
		},
		Plan: func(p harness.Params) coord.Plan {
			return coord.Plan{
				Signals: []string{"slot-taken"},
				Pauses:  []coord.Pause{{Name: "slow-job", Duration: p.Duration("slow")}},
			}
		},
		Build: buildHeadOfLine,
	})
}

func buildHeadOfLine(b *harness.BuildEnv) (*harness.Setup, error) {
	exec, err := executors(1).Select(b.Mode)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var latency time.Duration

	drain := harness.Step{Name: "drain", Do: func(ctx context.Context, _ *harness.Env) error {
		return exec.Wait(ctx)
	}}

	return &harness.Setup{
		Actors: []harness.Actor{
			{Name: "uploader", Role: "sender", Steps: []harness.Step{
				{Name: "submit", Do: func(ctx context.Context, env *harness.Env) error {
					return exec.Submit(ctx, "upload", func(ctx context.Context) {
						env.Logf("upload started")
						if err := env.Fire("slot-taken"); err != nil {
							env.Logf("%v", err)
							return
						}
						if err := env.Pause(ctx, "slow-job"); err != nil {
							env.Logf("upload interrupted: %v", err)
							return
						}
						env.Logf("upload finished")
					})
				}},
				drain,
			}},
			{Name: "heartbeat", Role: "sender", Steps: []harness.Step{
				{Name: "wait", Do: func(ctx context.Context, env *harness.Env) error { return env.Await(ctx, "slot-taken") }},
				{Name: "submit", Do: func(ctx context.Context, env *harness.Env) error {
					start := time.Now()
					err := exec.Submit(ctx, "heartbeat", func(context.Context) { env.Logf("heartbeat sent") })
					took := time.Since(start)
					mu.Lock()
					latency = took
					mu.Unlock()

					switch {
					case err == nil:
						env.Logf("heartbeat accepted after %s", took.Round(time.Millisecond))
					case errors.Is(err, resource.ErrExecutorFull):
						env.Logf("heartbeat refused: %v", err)
					default:
						return err
					}
					return nil
				}},
				drain,
			}},
		},
		State: func() map[string]any {
			mu.Lock()
			defer mu.Unlock()
			return map[string]any{"submit_latency": latency, "dropped": len(exec.Dropped())}
		},
		Invariant: harness.MaxLatency("submit_latency", b.Params.Duration("budget")),
	}, nil
}
