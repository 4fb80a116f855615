package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/racelab/internal/config"
)

func TestTrialsTally(t *testing.T) {
	cmd, buf := newSubcommand(NewTrialsCommand, "lost-update", "-n", "5", "--parallel", "2",
		"--set", "actors=2", "--set", "increments=5")
	require.NoError(t, cmd.Execute())

	out := buf.String()
	assert.Contains(t, out, "=== Results: lost-update [BUGGY] x 5 trials ===")
	assert.Contains(t, out, "expected:   5/5 (100.0%)")
	assert.True(t, strings.HasSuffix(out, "verdict: invariant_violated in 5/5 trials\n"), out)
	assert.NotContains(t, out, "[BUGGY] client-1:", "trial traces are not streamed")
}

func TestTrialsInvalidCount(t *testing.T) {
	cmd, _ := newSubcommand(NewTrialsCommand, "lost-update", "-n", "0")
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "must be positive")
}

func TestTrialsCountFromConfig(t *testing.T) {
	opts := &TrialsOptions{RootOptions: &RootOptions{Format: "json", Config: &config.File{Trials: 3}}}
	cmd := NewTrialsCommand(opts.RootOptions)
	buf := &strings.Builder{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"config-load", "--once"})
	require.NoError(t, cmd.Execute())

	var resp struct {
		Data struct {
			Trials   int            `json:"trials"`
			Tally    map[string]int `json:"tally"`
			Rate     float64        `json:"rate"`
			Dominant string         `json:"dominant"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(buf.String()), &resp))
	assert.Equal(t, 3, resp.Data.Trials)
	assert.Equal(t, map[string]int{"invariant_held": 3}, resp.Data.Tally)
	assert.Equal(t, 1.0, resp.Data.Rate)
	assert.Equal(t, "invariant_held", resp.Data.Dominant)
}

func TestTrialsMetricsFileAndDatabase(t *testing.T) {
	dir := t.TempDir()
	promPath := filepath.Join(dir, "racelab.prom")
	dbPath := filepath.Join(dir, "runs.db")

	cmd, _ := newSubcommand(NewTrialsCommand, "version-race", "-n", "4", "--fixed",
		"--metrics-file", promPath, "--db", dbPath)
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(promPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `racelab_runs_total{mode="fixed",scenario="version-race",verdict="invariant_held"} 4`)
	assert.Contains(t, string(data), `racelab_trials_expected_ratio{mode="fixed",scenario="version-race"} 1`)

	hist, buf := newSubcommand(NewHistoryCommand, "--db", dbPath, "--scenario", "version-race", "--tally")
	require.NoError(t, hist.Execute())
	assert.Equal(t, "version-race [FIXED]: invariant_held=4\n", buf.String())
}
