package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/racelab/internal/config"
	"github.com/roach88/racelab/internal/harness"
	"github.com/roach88/racelab/internal/scenarios"
	"github.com/roach88/racelab/internal/store"
	"github.com/roach88/racelab/internal/variant"
)

// ScenarioFlags are the flags shared by run and trials.
type ScenarioFlags struct {
	Fixed    bool
	Atomic   bool
	Once     bool
	Mode     string
	Set      []string
	Timeout  time.Duration
	Seed     uint64
	Database string

	// IDs overrides the run ID generator (for testing).
	IDs harness.RunIDGenerator
}

func (f *ScenarioFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.Fixed, "fixed", false, "run the fixed implementation")
	cmd.Flags().BoolVar(&f.Atomic, "atomic", false, "run the atomic alternate fix")
	cmd.Flags().BoolVar(&f.Once, "once", false, "run the one-time-initialization alternate fix")
	cmd.Flags().StringVar(&f.Mode, "mode", "", "mode by name (buggy|fixed|atomic|once)")
	cmd.Flags().StringArrayVar(&f.Set, "set", nil, "override a scenario parameter (k=v, repeatable)")
	cmd.Flags().DurationVar(&f.Timeout, "timeout", 0, "watchdog timeout (default: scenario or config)")
	cmd.Flags().Uint64Var(&f.Seed, "seed", 0, "jitter seed (default: config or random)")
	cmd.Flags().StringVar(&f.Database, "db", "", "persist runs to this SQLite database")
}

// runPlan is everything resolved from flags and config before running.
type runPlan struct {
	scenario *harness.Scenario
	mode     variant.Mode
	options  []harness.Option
}

// resolve looks up the scenario and mode and layers flags over config.
// Every failure here is a command error.
func (f *ScenarioFlags) resolve(cmd *cobra.Command, root *RootOptions, name string) (*runPlan, error) {
	sc, err := scenarios.Lookup(name)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "unknown scenario", err)
	}
	mode, err := variant.FromFlags(f.Fixed, f.Atomic, f.Once, f.Mode)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid mode", err)
	}
	if !sc.Supports(mode) {
		return nil, WrapExitError(ExitCommandError, "invalid mode",
			&variant.UnknownModeError{Mode: string(mode), Resource: sc.Name, Available: sc.Modes})
	}
	overrides, err := parseSet(f.Set)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --set", err)
	}

	cfg := root.config()
	scCfg := cfg.Scenario(sc.Name)
	params := config.MergeParams(scCfg.Params, overrides)
	if _, err := sc.ResolveParams(params); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid parameter", err)
	}

	opts := []harness.Option{
		harness.WithLogger(root.Logger(cmd)),
		harness.WithParams(params),
	}
	switch {
	case cmd.Flags().Changed("timeout"):
		opts = append(opts, harness.WithTimeout(f.Timeout))
	case scCfg.Timeout > 0:
		opts = append(opts, harness.WithTimeout(time.Duration(scCfg.Timeout)))
	}
	switch {
	case cmd.Flags().Changed("seed"):
		opts = append(opts, harness.WithSeed(f.Seed))
	case cfg.Seed != nil:
		opts = append(opts, harness.WithSeed(*cfg.Seed))
	}
	if f.IDs != nil {
		opts = append(opts, harness.WithRunIDGenerator(f.IDs))
	}
	return &runPlan{scenario: sc, mode: mode, options: opts}, nil
}

// database returns the --db path, falling back to the config file.
func (f *ScenarioFlags) database(root *RootOptions) string {
	if f.Database != "" {
		return f.Database
	}
	return root.config().Database
}

// parseSet parses repeated k=v flags.
func parseSet(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected k=v, got %q", p)
		}
		out[k] = v
	}
	return out, nil
}

// openStore opens the run history database.
func openStore(path string) (*store.Store, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// commandContext returns a context cancelled on SIGINT or SIGTERM. The
// harness turns the cancellation into an INTERRUPTED fault.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
