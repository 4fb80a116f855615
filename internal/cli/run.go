package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/racelab/internal/harness"
	"github.com/roach88/racelab/internal/report"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ScenarioFlags
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run one scenario once",
		Long: `Run one scenario once and report whether its safety property held.

With no mode flag the buggy implementation runs. Trace lines are printed as
actors emit them, followed by the results block.

Example:
  racelab run lost-update
  racelab run lost-update --atomic --set actors=32
  racelab run lock-leak --fixed --timeout 500ms
  racelab run port-rebind --seed 7 --db runs.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, args[0], cmd)
		},
	}

	opts.ScenarioFlags.register(cmd)

	return cmd
}

func runScenario(opts *RunOptions, name string, cmd *cobra.Command) error {
	plan, err := opts.resolve(cmd, opts.RootOptions, name)
	if err != nil {
		return err
	}
	out := opts.formatter(cmd)
	logger := opts.Logger(cmd)

	runOpts := plan.options
	if !out.JSON() {
		runOpts = append(runOpts, harness.WithTraceSink(report.TraceSink(cmd.OutOrStdout())))
	}

	ctx, stop := commandContext(cmd)
	defer stop()

	res, runErr := harness.Run(ctx, plan.scenario, plan.mode, runOpts...)
	if res == nil {
		return WrapExitError(ExitCommandError, "failed to start scenario", runErr)
	}

	if path := opts.database(opts.RootOptions); path != "" {
		st, err := openStore(path)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		if err := st.WriteRun(ctx, res); err != nil {
			return WrapExitError(ExitCommandError, "failed to record run", err)
		}
		logger.Debug("run recorded", "db", path, "run_id", res.RunID)
	}

	if out.JSON() {
		if err := out.Success(report.NewRunReport(res)); err != nil {
			return err
		}
	} else {
		report.WriteResult(cmd.OutOrStdout(), plan.scenario, res)
	}

	if runErr != nil {
		return WrapExitError(ExitFailure, "harness fault", runErr)
	}
	return nil
}
