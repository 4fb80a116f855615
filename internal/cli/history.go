package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/racelab/internal/harness"
	"github.com/roach88/racelab/internal/report"
	"github.com/roach88/racelab/internal/scenarios"
	"github.com/roach88/racelab/internal/store"
	"github.com/roach88/racelab/internal/variant"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Scenario string
	Verdict  string
	Limit    int
	Tally    bool
}

// TallyRow is one scenario and mode's stored verdict counts.
type TallyRow struct {
	Scenario string                  `json:"scenario"`
	Mode     variant.Mode            `json:"mode"`
	Counts   map[harness.Verdict]int `json:"counts"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded runs",
		Long: `Show runs recorded with --db.

Without a run ID, lists runs newest first. With a run ID, prints that run's
trace and results block as run printed them. With --tally, prints verdict
counts per mode for --scenario.

Example:
  racelab history --db runs.db
  racelab history --db runs.db --scenario lost-update --verdict indeterminate
  racelab history --db runs.db 0192f7a4-...
  racelab history --db runs.db --scenario port-rebind --tally`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default: config)")
	cmd.Flags().StringVar(&opts.Scenario, "scenario", "", "only runs of this scenario")
	cmd.Flags().StringVar(&opts.Verdict, "verdict", "", "only runs with this verdict")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum runs to list (0 for all)")
	cmd.Flags().BoolVar(&opts.Tally, "tally", false, "print verdict counts per mode for --scenario")

	return cmd
}

func runHistory(opts *HistoryOptions, args []string, cmd *cobra.Command) error {
	path := opts.Database
	if path == "" {
		path = opts.config().Database
	}
	if path == "" {
		return NewExitError(ExitCommandError, "no database: pass --db or set database in the config file")
	}
	// store.Open would create a missing file; history only reads.
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
	}

	st, err := openStore(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			opts.Logger(cmd).Error("error closing database", "error", closeErr)
		}
	}()

	switch {
	case len(args) == 1:
		return showRun(opts, st, args[0], cmd)
	case opts.Tally:
		return showTally(opts, st, cmd)
	default:
		return listRuns(opts, st, cmd)
	}
}

func listRuns(opts *HistoryOptions, st *store.Store, cmd *cobra.Command) error {
	verdict, err := parseVerdict(opts.Verdict)
	if err != nil {
		return err
	}
	runs, err := st.ListRuns(cmd.Context(), store.Filter{
		Scenario: opts.Scenario,
		Verdict:  verdict,
		Limit:    opts.Limit,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read history", err)
	}

	out := opts.formatter(cmd)
	if out.JSON() {
		return out.Success(runs)
	}
	return report.WriteHistory(cmd.OutOrStdout(), runs)
}

func showRun(opts *HistoryOptions, st *store.Store, id string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	run, err := st.ReadRun(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", id))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	outcomes, err := st.ReadOutcomes(ctx, id)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	events, err := st.ReadTrace(ctx, id)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	res := &harness.Result{
		RunID:     run.ID,
		Scenario:  run.Scenario,
		Mode:      run.Mode,
		Tag:       run.Mode.Tag(),
		Seed:      run.Seed,
		Params:    run.Params,
		Invariant: run.Invariant,
		Verdict:   run.Verdict,
		Reason:    run.Reason,
		TimedOut:  run.TimedOut,
		Trace:     events,
		Outcome:   harness.OutcomeRecord{State: run.State, Actors: outcomes},
		StartedAt: run.StartedAt,
		Elapsed:   run.Elapsed,
	}
	if run.FaultCode != "" {
		res.Fault = &harness.FaultError{Code: harness.FaultCode(run.FaultCode), Message: run.Reason, Scenario: run.Scenario}
	}

	out := opts.formatter(cmd)
	if out.JSON() {
		return out.Success(report.NewRunReport(res))
	}
	// The scenario may have been renamed since the run was recorded.
	sc, _ := scenarios.Lookup(run.Scenario)
	report.WriteTrace(cmd.OutOrStdout(), res.Tag, res.Trace)
	report.WriteResult(cmd.OutOrStdout(), sc, res)
	return nil
}

func showTally(opts *HistoryOptions, st *store.Store, cmd *cobra.Command) error {
	if opts.Scenario == "" {
		return NewExitError(ExitCommandError, "--tally requires --scenario")
	}
	modes := variant.Known
	if sc, err := scenarios.Lookup(opts.Scenario); err == nil {
		modes = sc.Modes
	}

	var rows []TallyRow
	for _, m := range modes {
		counts, err := st.VerdictCounts(cmd.Context(), opts.Scenario, m)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read history", err)
		}
		if len(counts) > 0 {
			rows = append(rows, TallyRow{Scenario: opts.Scenario, Mode: m, Counts: counts})
		}
	}

	out := opts.formatter(cmd)
	if out.JSON() {
		if rows == nil {
			rows = []TallyRow{}
		}
		return out.Success(rows)
	}
	if len(rows) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no runs recorded for %s\n", opts.Scenario)
		return nil
	}
	for _, r := range rows {
		fmt.Fprintf(cmd.OutOrStdout(), "%s [%s]: %s\n", r.Scenario, r.Mode.Tag(), formatCounts(r.Counts))
	}
	return nil
}

func parseVerdict(s string) (harness.Verdict, error) {
	if s == "" {
		return "", nil
	}
	v := harness.Verdict(s)
	switch v {
	case harness.VerdictHeld, harness.VerdictViolated, harness.VerdictIndeterminate, harness.VerdictFault:
		return v, nil
	}
	return "", NewExitError(ExitCommandError, fmt.Sprintf("unknown verdict %q: must be one of %s, %s, %s, %s",
		s, harness.VerdictHeld, harness.VerdictViolated, harness.VerdictIndeterminate, harness.VerdictFault))
}

func formatCounts(counts map[harness.Verdict]int) string {
	order := []harness.Verdict{harness.VerdictViolated, harness.VerdictIndeterminate, harness.VerdictHeld, harness.VerdictFault}
	var parts []string
	for _, v := range order {
		if n, ok := counts[v]; ok {
			parts = append(parts, fmt.Sprintf("%s=%d", v, n))
		}
	}
	return strings.Join(parts, " ")
}
