package scenarios

import (
	"context"

	"github.com/roach88/racelab/internal/coord"
	"github.com/roach88/racelab/internal/harness"
	"github.com/roach88/racelab/internal/resource"
	"github.com/roach88/racelab/internal/variant"
)

func txPools(window resource.RaceWindow) *variant.Table[resource.TxPool] {
	return variant.NewTable[resource.TxPool]("transaction pool").
		Register(variant.Buggy, func() resource.TxPool { return resource.NewStaleNoncePool(window) }).
		Register(variant.Fixed, func() resource.TxPool { return resource.NewAtomicPool(window) })
}

func init() {
	MustRegister(&harness.Scenario{
		Name:     "nonce-classify",
		Title:    "transaction filed with a stale account nonce",
		Summary:  "The pool checks a transaction's nonce against the account, then files it as pending or queued. A block mined between the check and the insert leaves an executable transaction queued, where no later block will promote it.",
		Kind:     harness.KindRace,
		Resource: "transaction pool",
		Modes:    txPools(nil).Modes(),
		Plan: func(harness.Params) coord.Plan {
			return coord.Plan{Signals: []string{"validated", "mined"}}
		},
		Build: buildNonceClassify,
	})
}

func buildNonceClassify(b *harness.BuildEnv) (*harness.Setup, error) {
	var pool resource.TxPool
	window := func(ctx context.Context) error {
		b.Log(ctx, "nonce checked against account nonce %d", pool.Nonce())
		if err := b.Fire(ctx, "validated"); err != nil {
			return err
		}
		return b.Await(ctx, "mined")
	}
	pool, err := txPools(window).Select(b.Mode)
	if err != nil {
		return nil, err
	}

	return &harness.Setup{
		Actors: []harness.Actor{
			{Name: "submitter", Role: "client", Steps: []harness.Step{
				{Name: "add", Do: func(ctx context.Context, env *harness.Env) error {
					lane, err := pool.Add(ctx, "tx-1", 1)
					if err != nil {
						return err
					}
					env.Logf("tx-1 (nonce 1) filed as %s", lane)
					return nil
				}},
			}},
			{Name: "miner", Role: "miner", Steps: []harness.Step{
				{Name: "mine", Do: func(ctx context.Context, env *harness.Env) error {
					if err := env.Await(ctx, "validated"); err != nil {
						return err
					}
					nonce, promoted := pool.Mine()
					env.Logf("mined nonce 0, account nonce now %d, promoted %v", nonce, promoted)
					return env.Fire("mined")
				}},
			}},
		},
		State: func() map[string]any {
			return map[string]any{"nonce": pool.Nonce(), "stranded": pool.Stranded()}
		},
		Invariant: harness.StateEquals("stranded", []string{}),
	}, nil
}
