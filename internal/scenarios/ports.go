package scenarios

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/roach88/racelab/internal/coord"
	"github.com/roach88/racelab/internal/harness"
	"github.com/roach88/racelab/internal/resource"
	"github.com/roach88/racelab/internal/variant"
)

func binders(maxTries uint) *variant.Table[resource.Binder] {
	return variant.NewTable[resource.Binder]("binder").
		Register(variant.Buggy, func() resource.Binder { return resource.NewSingleBinder() }).
		Register(variant.Fixed, func() resource.Binder {
			return resource.NewRetryBinder(maxTries, 5*time.Millisecond, 50*time.Millisecond)
		})
}

func init() {
	MustRegister(&harness.Scenario{
		Name:     "port-rebind",
		Title:    "restart binds before the old listener lets go",
		Summary:  "A restarting server binds its port as soon as it is told to restart, while the old instance is still draining. The bind fails with address in use unless it retries.",
		Kind:     harness.KindRace,
		Resource: "binder",
		Modes:    binders(0).Modes(),
		// How long the old listener takes to close is real OS timing.
		Flaky: true,
		Params: []harness.Param{
			{Name: "tries", Kind: harness.ParamInt, Default: "20", Min: "1", Usage: "bind attempts the fixed binder makes"},
			{Name: "drain-min", Kind: harness.ParamDuration, Default: "10ms", Min: "0s", Usage: "shortest drain of the old listener"},
			{Name: "drain-max", Kind: harness.ParamDuration, Default: "40ms", Min: "0s", Usage: "longest drain of the old listener"},
		},
		Plan: func(p harness.Params) coord.Plan {
			return coord.Plan{
				Signals: []string{"restart"},
				Jitters: []coord.Jitter{{Name: "drain", Min: p.Duration("drain-min"), Max: p.Duration("drain-max")}},
			}
		},
		Build: buildPortRebind,
	})
}

func buildPortRebind(b *harness.BuildEnv) (*harness.Setup, error) {
	tries := b.Params.Int("tries")
	binder, err := binders(uint(tries)).Select(b.Mode)
	if err != nil {
		return nil, err
	}

	old, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen on loopback: %w", err)
	}
	addr := old.Addr().String()

	var mu sync.Mutex
	var bound net.Listener

	return &harness.Setup{
		Actors: []harness.Actor{
			{Name: "old-server", Role: "server", Steps: []harness.Step{
				{Name: "restart", Do: func(ctx context.Context, env *harness.Env) error {
					env.Logf("serving on %s, asking for a restart", addr)
					if err := env.Fire("restart"); err != nil {
						return err
					}
					d, err := env.Jitter(ctx, "drain")
					if err != nil {
						return err
					}
					if err := old.Close(); err != nil {
						return fmt.Errorf("close old listener: %w", err)
					}
					env.Logf("released %s after draining for %s", addr, d.Round(time.Millisecond))
					return nil
				}},
			}},
			{Name: "new-server", Role: "server", Steps: []harness.Step{
				{Name: "wait", Do: func(ctx context.Context, env *harness.Env) error { return env.Await(ctx, "restart") }},
				{Name: "bind", Do: func(ctx context.Context, env *harness.Env) error {
					ln, err := binder.Bind(ctx, addr)
					if err != nil {
						return err
					}
					mu.Lock()
					bound = ln
					mu.Unlock()
					env.Logf("bound %s after %d attempts", addr, binder.Attempts())
					return nil
				}},
			}},
		},
		State: func() map[string]any {
			return map[string]any{"attempts": binder.Attempts()}
		},
		Invariant: harness.AllSucceeded(),
		Cleanup: func() error {
			mu.Lock()
			defer mu.Unlock()
			var errs []error
			if err := old.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				errs = append(errs, err)
			}
			if bound != nil {
				errs = append(errs, bound.Close())
			}
			return errors.Join(errs...)
		},
	}, nil
}
