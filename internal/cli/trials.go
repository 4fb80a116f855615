package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/racelab/internal/harness"
	"github.com/roach88/racelab/internal/metrics"
	"github.com/roach88/racelab/internal/report"
)

// DefaultTrials is the batch size when neither -n nor the config sets one.
const DefaultTrials = 20

// TrialsOptions holds flags for the trials command.
type TrialsOptions struct {
	*RootOptions
	ScenarioFlags
	Count       int
	Parallel    int
	MetricsFile string
}

// NewTrialsCommand creates the trials command.
func NewTrialsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TrialsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trials <scenario>",
		Short: "Run one scenario repeatedly and tally verdicts",
		Long: `Run one scenario many times and tally the verdicts.

Trials run concurrently up to --parallel. Harness faults are counted, not
fatal, but any fault makes the command exit 1 after the summary. With
--seed, trial i uses seed+i so a single trial can be replayed with run.

Example:
  racelab trials lost-update -n 100 --set stress=true
  racelab trials port-rebind -n 50 --parallel 4 --fixed
  racelab trials notifier-gap -n 20 --metrics-file racelab.prom`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrials(opts, args[0], cmd)
		},
	}

	opts.ScenarioFlags.register(cmd)
	cmd.Flags().IntVarP(&opts.Count, "trials", "n", 0, fmt.Sprintf("number of trials (default: config or %d)", DefaultTrials))
	cmd.Flags().IntVar(&opts.Parallel, "parallel", 0, "trials run at once (default: config or 1)")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus text format metrics to this file")

	return cmd
}

func runTrials(opts *TrialsOptions, name string, cmd *cobra.Command) error {
	plan, err := opts.resolve(cmd, opts.RootOptions, name)
	if err != nil {
		return err
	}
	cfg := opts.config()

	n := firstPositive(opts.Count, cfg.Trials, DefaultTrials)
	if cmd.Flags().Changed("trials") && opts.Count <= 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --trials %d: must be positive", opts.Count))
	}
	parallel := firstPositive(opts.Parallel, cfg.Parallel, 1)

	out := opts.formatter(cmd)
	logger := opts.Logger(cmd)

	ctx, stop := commandContext(cmd)
	defer stop()

	logger.Debug("starting trials", "scenario", name, "mode", plan.mode, "trials", n, "parallel", parallel)
	sum, err := harness.RunTrials(ctx, plan.scenario, plan.mode, n, parallel, plan.options...)
	if err != nil {
		return WrapExitError(ExitCommandError, "trials aborted", err)
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
		for _, res := range sum.Results {
			if res == nil {
				continue
			}
			if err := st.WriteRun(ctx, res); err != nil {
				return WrapExitError(ExitCommandError, "failed to record run", err)
			}
		}
		logger.Debug("trials recorded", "db", path, "runs", len(sum.Results))
	}

	if opts.MetricsFile != "" {
		rec := metrics.New()
		rec.ObserveTrials(sum)
		if err := rec.WriteTextfile(opts.MetricsFile); err != nil {
			return WrapExitError(ExitCommandError, "failed to write metrics", err)
		}
		out.VerboseLog("metrics written to %s", opts.MetricsFile)
	}

	if out.JSON() {
		if err := out.Success(report.NewTrialsReport(sum)); err != nil {
			return err
		}
	} else {
		report.WriteTrials(cmd.OutOrStdout(), plan.scenario, sum)
	}

	if faults := sum.Tally[harness.VerdictFault]; faults > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d trials ended in a harness fault", faults, sum.Trials))
	}
	return nil
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
