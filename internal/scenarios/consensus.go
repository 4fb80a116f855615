package scenarios

import (
	"context"
	"time"

	"github.com/roach88/racelab/internal/coord"
	"github.com/roach88/racelab/internal/harness"
	"github.com/roach88/racelab/internal/resource"
	"github.com/roach88/racelab/internal/variant"
)

func configChangers(timeout time.Duration) *variant.Table[resource.ConfigChanger] {
	return variant.NewTable[resource.ConfigChanger]("joint quorum").
		Register(variant.Buggy, func() resource.ConfigChanger { return resource.WaitForJoint{} }).
		Register(variant.Fixed, func() resource.ConfigChanger { return resource.RollbackOnTimeout{Timeout: timeout} })
}

func init() {
	MustRegister(&harness.Scenario{
		Name:     "joint-consensus",
		Title:    "membership change stuck in the joint configuration",
		Summary:  "The leader moves from three members to two new ones that never come up. The change needs a majority of both sets, so without a timeout the leader waits in the joint configuration forever.",
		Kind:     harness.KindDeadlock,
		Resource: "joint quorum",
		Modes:    configChangers(0).Modes(),
		Timeout:  2 * time.Second,
		Params: []harness.Param{
			{Name: "change-timeout", Kind: harness.ParamDuration, Default: "100ms", Min: "0s", Usage: "how long the fixed leader waits before rolling back"},
		},
		Plan: func(harness.Params) coord.Plan {
			return coord.Plan{Signals: []string{"proposed"}}
		},
		Build: buildJointConsensus,
	})
}

func buildJointConsensus(b *harness.BuildEnv) (*harness.Setup, error) {
	changer, err := configChangers(b.Params.Duration("change-timeout")).Select(b.Mode)
	if err != nil {
		return nil, err
	}
	old := []string{"n1", "n2", "n3"}
	q := resource.NewJointQuorum(old, []string{"n4", "n5"})
	var members []string

	leader := harness.Actor{Name: "n1", Role: "leader", Steps: []harness.Step{
		{Name: "propose", Do: func(_ context.Context, env *harness.Env) error {
			env.Logf("entering joint configuration %v + %v", q.Old(), q.New())
			if err := q.Ack("n1"); err != nil {
				return err
			}
			return env.Fire("proposed")
		}},
		{Name: "commit", Do: func(ctx context.Context, env *harness.Env) error {
			m, err := changer.Change(ctx, q)
			if err != nil {
				return err
			}
			members = m
			env.Logf("configuration now %v (acked by %v)", m, q.Acked())
			return nil
		}},
	}}

	setup := &harness.Setup{
		Actors: []harness.Actor{leader},
		State: func() map[string]any {
			return map[string]any{"members": members, "acked": q.Acked()}
		},
		Invariant: harness.All(harness.AllSucceeded(), harness.StateEquals("members", old)),
	}
	for _, id := range old[1:] {
		setup.Actors = append(setup.Actors, harness.Actor{Name: id, Role: "follower", Steps: []harness.Step{
			{Name: "ack", Do: func(ctx context.Context, env *harness.Env) error {
				if err := env.Await(ctx, "proposed"); err != nil {
					return err
				}
				env.Logf("ack joint configuration")
				return q.Ack(id)
			}},
		}})
	}
	return setup, nil
}
