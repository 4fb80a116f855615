package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/racelab/internal/harness"
	"github.com/roach88/racelab/internal/trace"
	"github.com/roach88/racelab/internal/variant"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestResult creates a finished run with two actors and a short trace.
func createTestResult(id, scenario string, mode variant.Mode, started time.Time) *harness.Result {
	return &harness.Result{
		RunID:     id,
		Scenario:  scenario,
		Mode:      mode,
		Tag:       mode.Tag(),
		Seed:      42,
		Params:    map[string]string{"actors": "2"},
		Invariant: "counter == 2",
		Verdict:   harness.VerdictViolated,
		Reason:    "counter = 1, expected 2 (lost 1)",
		Trace: []trace.Event{
			{Seq: 1, Actor: trace.HarnessActor, Message: "scenario starting"},
			{Seq: 2, Actor: "client-1", Message: "read 0, wrote 1", Offset: time.Millisecond},
			{Seq: 3, Actor: "client-2", Message: "read 0, wrote 1", Offset: 2 * time.Millisecond},
		},
		Outcome: harness.OutcomeRecord{
			State: map[string]any{"counter": int64(1)},
			Actors: []harness.ActorOutcome{
				{Actor: "client-1", Role: "client", Status: harness.StatusSucceeded, LastStep: "increment", Elapsed: time.Millisecond},
				{Actor: "client-2", Role: "client", Status: harness.StatusSucceeded, LastStep: "increment", Elapsed: time.Millisecond},
			},
		},
		StartedAt: started,
		Elapsed:   5 * time.Millisecond,
	}
}
