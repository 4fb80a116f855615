package scenarios

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/racelab/internal/coord"
	"github.com/roach88/racelab/internal/harness"
	"github.com/roach88/racelab/internal/resource"
	"github.com/roach88/racelab/internal/variant"
)

func workspaces(root string) *variant.Table[resource.Workspace] {
	return variant.NewTable[resource.Workspace]("workspace").
		Register(variant.Buggy, func() resource.Workspace { return resource.SharedWorkspace{Root: root} }).
		Register(variant.Fixed, func() resource.Workspace { return resource.PrivateWorkspace{Root: root} })
}

func init() {
	MustRegister(&harness.Scenario{
		Name:     "build-dir",
		Title:    "concurrent builds share one output directory",
		Summary:  "Parallel builds write their artifacts into the same directory. Whichever build writes last wins, and the others package an artifact that is not theirs.",
		Kind:     harness.KindRace,
		Resource: "workspace",
		Modes:    workspaces("").Modes(),
		Params: []harness.Param{
			{Name: "builds", Kind: harness.ParamInt, Default: "2", Min: "1", Usage: "concurrent builds"},
		},
		Plan: func(p harness.Params) coord.Plan {
			return coord.Plan{Checkpoints: []coord.Checkpoint{{Name: "artifacts-written", Parties: p.Int("builds")}}}
		},
		Build: buildBuildDir,
	})
}

const artifactName = "artifact.bin"

func buildBuildDir(b *harness.BuildEnv) (*harness.Setup, error) {
	builds := b.Params.Int("builds")
	root, err := os.MkdirTemp("", "racelab-build-")
	if err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	ws, err := workspaces(root).Select(b.Mode)
	if err != nil {
		os.RemoveAll(root)
		return nil, err
	}

	setup := &harness.Setup{
		State: func() map[string]any {
			matches, _ := filepath.Glob(filepath.Join(root, "*", artifactName))
			return map[string]any{"artifacts": len(matches)}
		},
		Invariant: harness.AllSucceeded(),
		Cleanup:   func() error { return os.RemoveAll(root) },
	}

	for i := 1; i <= builds; i++ {
		name := fmt.Sprintf("build-%d", i)
		var dir string
		var prepErr error

		setup.Actors = append(setup.Actors, harness.Actor{
			Name: name,
			Role: "build",
			Steps: []harness.Step{
				{Name: "compile", Do: func(_ context.Context, env *harness.Env) error {
					dir, prepErr = ws.Dir(name)
					if prepErr == nil {
						prepErr = os.WriteFile(filepath.Join(dir, artifactName), []byte(name), 0o644)
					}
					if prepErr == nil {
						env.Logf("wrote %s into %s", artifactName, filepath.Base(dir))
					}
					return nil
				}},
				{Name: "sync", Do: func(ctx context.Context, env *harness.Env) error {
					return env.Reach(ctx, "artifacts-written")
				}},
				{Name: "package", Do: func(_ context.Context, env *harness.Env) error {
					if prepErr != nil {
						return prepErr
					}
					got, err := os.ReadFile(filepath.Join(dir, artifactName))
					if err != nil {
						return fmt.Errorf("read artifact: %w", err)
					}
					if string(got) != name {
						return fmt.Errorf("artifact in %s was overwritten by %s", filepath.Base(dir), got)
					}
					env.Logf("packaged own artifact")
					return nil
				}},
			},
		})
	}
	return setup, nil
}
