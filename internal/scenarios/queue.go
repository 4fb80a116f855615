package scenarios

import (
	"context"
	"fmt"

	"github.com/roach88/racelab/internal/coord"
	"github.com/roach88/racelab/internal/harness"
	"github.com/roach88/racelab/internal/resource"
	"github.com/roach88/racelab/internal/variant"
)

func taskQueues() *variant.Table[resource.TaskQueue] {
	return variant.NewTable[resource.TaskQueue]("task queue").
		Register(variant.Buggy, func() resource.TaskQueue { return resource.NewEagerQueue() }).
		Register(variant.Fixed, func() resource.TaskQueue { return resource.NewDeferringQueue() })
}

func init() {
	MustRegister(&harness.Scenario{
		Name:     "dependency-order",
		Title:    "dependent tasks run before their inputs exist",
		Summary:  "Transactions that consume another transaction's output arrive before it. A queue that runs whatever it is handed fails them for missing inputs instead of holding them back.",
		Kind:     harness.KindRace,
		Resource: "task queue",
		Modes:    taskQueues().Modes(),
		Plan: func(harness.Params) coord.Plan {
			return coord.Plan{Checkpoints: []coord.Checkpoint{{Name: "dependents-submitted", Parties: 3}}}
		},
		Build: buildDependencyOrder,
	})
}

// chainTasks returns A → B → C, each consuming the previous task's output.
func chainTasks(b *harness.BuildEnv) []resource.Task {
	ids := []string{"A", "B", "C"}
	tasks := make([]resource.Task, len(ids))
	input := resource.GenesisObject
	for i, id := range ids {
		output := "obj_" + id
		tasks[i] = resource.Task{
			ID:      id,
			Inputs:  []string{input},
			Outputs: []string{output},
			Run: func(ctx context.Context) error {
				b.Log(ctx, "task %s consumed %s, produced %s", id, input, output)
				return nil
			},
		}
		input = output
	}
	return tasks
}

func buildDependencyOrder(b *harness.BuildEnv) (*harness.Setup, error) {
	tasks := chainTasks(b)
	if err := resource.ValidateGraph(tasks); err != nil {
		return nil, err
	}
	queue, err := taskQueues().Select(b.Mode)
	if err != nil {
		return nil, err
	}

	submitter := func(t resource.Task, early bool) harness.Actor {
		submit := harness.Step{Name: "submit", Do: func(ctx context.Context, env *harness.Env) error {
			r := queue.Submit(ctx, t)
			env.Logf("submitted %s: %s", t.ID, r.Status)
			return nil
		}}
		meet := harness.Step{Name: "sync", Do: func(ctx context.Context, env *harness.Env) error {
			return env.Reach(ctx, "dependents-submitted")
		}}
		steps := []harness.Step{meet, submit}
		if early {
			steps = []harness.Step{submit, meet}
		}
		steps = append(steps, harness.Step{Name: "settle", Do: func(ctx context.Context, env *harness.Env) error {
			if err := queue.Wait(ctx); err != nil {
				return err
			}
			r := queue.Results()[t.ID]
			if r.Status != resource.TaskSucceeded {
				return fmt.Errorf("task %s %s: %v", t.ID, r.Status, r.Err)
			}
			return nil
		}})
		return harness.Actor{Name: "submit-" + t.ID, Role: "submitter", Steps: steps}
	}

	return &harness.Setup{
		// B and C arrive before A.
		Actors: []harness.Actor{
			submitter(tasks[0], false),
			submitter(tasks[1], true),
			submitter(tasks[2], true),
		},
		State: func() map[string]any {
			pending := 0
			for _, r := range queue.Results() {
				if r.Status == resource.TaskPending {
					pending++
				}
			}
			return map[string]any{"order": queue.Order(), "pending": pending, "objects": queue.Objects()}
		},
		Invariant: harness.All(
			harness.TopologicalOrder("order", []string{"A", "B", "C"}),
			harness.AllSucceeded(),
		),
	}, nil
}
