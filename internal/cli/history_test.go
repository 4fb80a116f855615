package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/racelab/internal/harness"
	"github.com/roach88/racelab/internal/store"
	"github.com/roach88/racelab/internal/trace"
	"github.com/roach88/racelab/internal/variant"
)

// seedHistory writes two runs to a fresh database and returns its path.
func seedHistory(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runs.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	runs := []*harness.Result{
		{
			RunID: "run-a", Scenario: "lost-update", Mode: variant.Buggy, Tag: "BUGGY",
			Invariant: "counter == 20", Verdict: harness.VerdictViolated, Reason: "counter = 10, expected 20 (lost 10)",
			Trace: []trace.Event{
				{Seq: 1, Actor: "client-1", Message: "added 10 over 10 increments"},
				{Seq: 2, Actor: "client-2", Message: "added 10 over 10 increments"},
			},
			Outcome: harness.OutcomeRecord{
				State: map[string]any{"counter": 10},
				Actors: []harness.ActorOutcome{
					{Actor: "client-1", Role: "client", Status: harness.StatusSucceeded, LastStep: "increment"},
					{Actor: "client-2", Role: "client", Status: harness.StatusSucceeded, LastStep: "increment"},
				},
			},
			StartedAt: t0, Elapsed: 2 * time.Millisecond,
		},
		{
			RunID: "run-b", Scenario: "version-race", Mode: variant.Fixed, Tag: "FIXED",
			Invariant: "at most one writer succeeds", Verdict: harness.VerdictHeld,
			StartedAt: t0.Add(time.Minute), Elapsed: time.Millisecond,
		},
	}
	for _, r := range runs {
		require.NoError(t, st.WriteRun(context.Background(), r))
	}
	return path
}

func TestHistoryRequiresDatabase(t *testing.T) {
	cmd, _ := newSubcommand(NewHistoryCommand)
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no database")
}

func TestHistoryMissingDatabase(t *testing.T) {
	cmd, _ := newSubcommand(NewHistoryCommand, "--db", filepath.Join(t.TempDir(), "nope.db"))
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database not found")
}

func TestHistoryList(t *testing.T) {
	path := seedHistory(t)
	cmd, buf := newSubcommand(NewHistoryCommand, "--db", path)
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "RUN"))
	assert.True(t, strings.HasPrefix(lines[1], "run-b"), "newest first")
	assert.True(t, strings.HasPrefix(lines[2], "run-a"))
}

func TestHistoryListFiltered(t *testing.T) {
	path := seedHistory(t)
	cmd, buf := newSubcommand(NewHistoryCommand, "--db", path, "--verdict", "invariant_violated")
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "run-a")
	assert.NotContains(t, buf.String(), "run-b")

	cmd, _ = newSubcommand(NewHistoryCommand, "--db", path, "--verdict", "broken")
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown verdict "broken"`)
}

func TestHistoryListJSON(t *testing.T) {
	path := seedHistory(t)
	cmd := NewHistoryCommand(&RootOptions{Format: "json"})
	buf := &strings.Builder{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", path, "--scenario", "lost-update"})
	require.NoError(t, cmd.Execute())

	var resp struct {
		Data []store.Run `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(buf.String()), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "run-a", resp.Data[0].ID)
}

func TestHistoryShowRun(t *testing.T) {
	path := seedHistory(t)
	cmd, buf := newSubcommand(NewHistoryCommand, "--db", path, "run-a")
	require.NoError(t, cmd.Execute())

	out := buf.String()
	assert.Contains(t, out, "[BUGGY] client-1: added 10 over 10 increments")
	assert.Contains(t, out, "=== Results: lost-update [BUGGY] ===")
	assert.Contains(t, out, "state:      counter=10")
	assert.True(t, strings.HasSuffix(out, "verdict: invariant_violated (counter = 10, expected 20 (lost 10))\n"), out)
}

func TestHistoryShowRunNotFound(t *testing.T) {
	path := seedHistory(t)
	cmd, _ := newSubcommand(NewHistoryCommand, "--db", path, "run-zzz")
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "run not found: run-zzz")
}

func TestHistoryTallyRequiresScenario(t *testing.T) {
	path := seedHistory(t)
	cmd, _ := newSubcommand(NewHistoryCommand, "--db", path, "--tally")
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--tally requires --scenario")
}
