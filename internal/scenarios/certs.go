package scenarios

import (
	"context"
	"errors"

	"github.com/roach88/racelab/internal/coord"
	"github.com/roach88/racelab/internal/harness"
	"github.com/roach88/racelab/internal/resource"
	"github.com/roach88/racelab/internal/variant"
)

var errEffectWrite = errors.New("store effects: write stalled")

func certFinishers() *variant.Table[resource.CertFinisher] {
	return variant.NewTable[resource.CertFinisher]("certificate store").
		Register(variant.Buggy, func() resource.CertFinisher { return resource.PendingFinisher{} }).
		Register(variant.Fixed, func() resource.CertFinisher { return resource.EffectFinisher{} })
}

func init() {
	MustRegister(&harness.Scenario{
		Name:     "missing-effect",
		Title:    "certificate effect lost between two executors",
		Summary:  "A downloader marks a certificate pending while consensus also executes it. Consensus takes it out of the pending set and fails to store the effect, and the downloader, seeing it no longer pending, assumes it was executed.",
		Kind:     harness.KindRace,
		Resource: "certificate store",
		Modes:    certFinishers().Modes(),
		Plan: func(harness.Params) coord.Plan {
			return coord.Plan{Signals: []string{"pending", "consensus-done"}}
		},
		Build: buildMissingEffect,
	})
}

func buildMissingEffect(b *harness.BuildEnv) (*harness.Setup, error) {
	fin, err := certFinishers().Select(b.Mode)
	if err != nil {
		return nil, err
	}
	store := resource.NewCertStore()
	const cert = "cert-7"

	return &harness.Setup{
		Actors: []harness.Actor{
			{Name: "downloader", Role: "executor", Steps: []harness.Step{
				{Name: "download", Do: func(_ context.Context, env *harness.Env) error {
					store.MarkPending(cert)
					env.Logf("%s downloaded, pending", cert)
					return env.Fire("pending")
				}},
				{Name: "finish", Do: func(ctx context.Context, env *harness.Env) error {
					if err := env.Await(ctx, "consensus-done"); err != nil {
						return err
					}
					if !fin.NeedsExecution(store, cert) {
						env.Logf("%s handled elsewhere, skipping", cert)
						return nil
					}
					store.StoreEffect(cert)
					env.Logf("%s executed, effect stored", cert)
					return nil
				}},
			}},
			{Name: "consensus", Role: "executor", Steps: []harness.Step{
				{Name: "execute", Do: func(ctx context.Context, env *harness.Env) error {
					if err := env.Await(ctx, "pending"); err != nil {
						return err
					}
					if store.TakePending(cert) {
						env.Logf("took %s from pending", cert)
					}
					env.Logf("%s not stored: %v", cert, errEffectWrite)
					return env.Fire("consensus-done")
				}},
			}},
		},
		State: func() map[string]any {
			return map[string]any{"missing": store.Missing()}
		},
		Invariant: harness.StateEquals("missing", []string{}),
	}, nil
}
