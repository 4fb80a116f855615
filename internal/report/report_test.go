package report

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/racelab/internal/harness"
	"github.com/roach88/racelab/internal/store"
	"github.com/roach88/racelab/internal/trace"
	"github.com/roach88/racelab/internal/variant"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	m.Run()
}

func assertGolden(t *testing.T, name string, got []byte) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, got)
}

var counterScenario = &harness.Scenario{
	Name:  "lost-update",
	Title: "Lost update on a shared counter",
	Kind:  harness.KindRace,
	Modes: []variant.Mode{variant.Buggy, variant.Fixed, variant.Atomic},
}

func buggyResult() *harness.Result {
	return &harness.Result{
		RunID:     "run-0001",
		Scenario:  "lost-update",
		Mode:      variant.Buggy,
		Tag:       variant.Buggy.Tag(),
		Seed:      7,
		Params:    map[string]string{"actors": "2", "increments": "1"},
		Invariant: "counter == 2",
		Verdict:   harness.VerdictViolated,
		Reason:    "counter = 1, expected 2 (lost 1)",
		Trace: []trace.Event{
			{Seq: 1, Actor: trace.HarnessActor, Message: "scenario lost-update starting"},
			{Seq: 2, Actor: "client-1", Message: "read 0, wrote 1"},
			{Seq: 3, Actor: "client-2", Message: "read 0, wrote 1"},
		},
		Outcome: harness.OutcomeRecord{
			State: map[string]any{"counter": int64(1), "expected": int64(2)},
			Actors: []harness.ActorOutcome{
				{Actor: "client-1", Status: harness.StatusSucceeded, LastStep: "increment", Elapsed: time.Millisecond},
				{Actor: "client-2", Status: harness.StatusSucceeded, LastStep: "increment", Elapsed: 1500 * time.Microsecond},
			},
		},
		Elapsed: 3 * time.Millisecond,
	}
}

func TestWriteResult_Buggy(t *testing.T) {
	res := buggyResult()
	var buf bytes.Buffer
	WriteTrace(&buf, res.Tag, res.Trace)
	WriteResult(&buf, counterScenario, res)
	assertGolden(t, "run-buggy", buf.Bytes())
}

func TestWriteResult_UnexpectedVerdict(t *testing.T) {
	res := &harness.Result{
		RunID:     "run-0002",
		Scenario:  "lock-leak",
		Mode:      variant.Fixed,
		Tag:       variant.Fixed.Tag(),
		Invariant: "all succeeded and held == []",
		Verdict:   harness.VerdictViolated,
		Reason:    "watchdog fired",
		TimedOut:  true,
		Outcome: harness.OutcomeRecord{
			Actors: []harness.ActorOutcome{
				{Actor: "order-1", Status: harness.StatusSucceeded, LastStep: "fire", Elapsed: 10 * time.Millisecond},
				{Actor: "order-2", Status: harness.StatusTimedOut, LastStep: "await", Elapsed: 2 * time.Second, Reason: "context deadline exceeded"},
			},
		},
		Elapsed: 2 * time.Second,
	}
	var buf bytes.Buffer
	WriteResult(&buf, nil, res)
	assertGolden(t, "run-unexpected", buf.Bytes())
}

func TestWriteResult_Fault(t *testing.T) {
	res := buggyResult()
	res.Verdict = harness.VerdictFault
	res.Fault = harness.NewPanicFault("lost-update", "client-2", "read-window", "boom")
	res.Reason = res.Fault.Message

	var buf bytes.Buffer
	WriteResult(&buf, counterScenario, res)
	out := buf.String()
	assert.Contains(t, out, "fault:      ACTOR_PANIC")
	assert.Contains(t, out, "actor=client-2, checkpoint=read-window")
	assert.NotContains(t, out, "unexpected for")
	assert.Regexp(t, `verdict: harness_fault \(.*\)\n$`, out)
}

func TestTraceSink_MatchesLine(t *testing.T) {
	var buf bytes.Buffer
	sink := TraceSink(&buf)
	e := trace.Event{Seq: 1, Actor: "writer", Message: "wrote <v2> & committed"}
	sink("FIXED-ONCE", e)
	assert.Equal(t, trace.Line("FIXED-ONCE", e)+"\n", buf.String())
}

func TestWriteTrials(t *testing.T) {
	sum := &harness.TrialSummary{
		Scenario: "lost-update",
		Mode:     variant.Buggy,
		Trials:   20,
		Tally: map[harness.Verdict]int{
			harness.VerdictViolated:      17,
			harness.VerdictIndeterminate: 2,
			harness.VerdictFault:         1,
		},
		Expected: 17,
		Faults:   map[harness.FaultCode]int{harness.FaultUnexpectedTimeout: 1},
		Elapsed:  1250 * time.Millisecond,
	}
	var buf bytes.Buffer
	WriteTrials(&buf, counterScenario, sum)
	assertGolden(t, "trials", buf.Bytes())
}

func TestDominant_TieGoesToFirst(t *testing.T) {
	sum := &harness.TrialSummary{Tally: map[harness.Verdict]int{
		harness.VerdictViolated:      3,
		harness.VerdictIndeterminate: 3,
	}}
	assert.Equal(t, harness.VerdictIndeterminate, Dominant(sum))
}

func TestWriteCatalog(t *testing.T) {
	all := []*harness.Scenario{
		counterScenario,
		{
			Name:  "port-rebind",
			Title: "Bind to a just-released port",
			Kind:  harness.KindRace,
			Modes: []variant.Mode{variant.Buggy, variant.Fixed},
			Flaky: true,
		},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCatalog(&buf, all))
	assertGolden(t, "catalog", buf.Bytes())
}

func TestWriteHistory(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	runs := []store.Run{
		{ID: "run-b", StartedAt: t0.Add(time.Minute), Scenario: "version-race", Mode: variant.Fixed, Verdict: harness.VerdictHeld, Elapsed: 4 * time.Millisecond},
		{ID: "run-a", StartedAt: t0, Scenario: "lost-update", Mode: variant.Buggy, Verdict: harness.VerdictViolated, Elapsed: 12500 * time.Microsecond},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteHistory(&buf, runs))
	assertGolden(t, "history", buf.Bytes())
}

func TestWriteHistory_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHistory(&buf, nil))
	assert.Equal(t, "no runs recorded\n", buf.String())
}

func TestRunReport_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, NewRunReport(buggyResult())))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "run-0001", got["run_id"])
	assert.Equal(t, "invariant_violated", got["verdict"])
	assert.Equal(t, true, got["expected"])
	assert.Equal(t, []any{
		"[BUGGY] harness: scenario lost-update starting",
		"[BUGGY] client-1: read 0, wrote 1",
		"[BUGGY] client-2: read 0, wrote 1",
	}, got["lines"])
}

func TestTrialsReport_JSON(t *testing.T) {
	sum := &harness.TrialSummary{
		Scenario: "lost-update",
		Mode:     variant.Fixed,
		Trials:   4,
		Tally:    map[harness.Verdict]int{harness.VerdictHeld: 4},
		Expected: 4,
	}
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, NewTrialsReport(sum)))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 1.0, got["rate"])
	assert.Equal(t, "invariant_held", got["dominant"])
	assert.Equal(t, 4.0, got["expected"])
}

func TestNewCatalog(t *testing.T) {
	sc := &harness.Scenario{
		Name:    "config-load",
		Kind:    harness.KindRace,
		Modes:   []variant.Mode{variant.Buggy, variant.Fixed, variant.Once},
		Timeout: 3 * time.Second,
		Params:  []harness.Param{{Name: "readers", Kind: harness.ParamInt, Default: "4"}},
	}
	entries := NewCatalog([]*harness.Scenario{sc})
	require.Len(t, entries, 1)
	assert.Equal(t, "3s", entries[0].Timeout)
	assert.Equal(t, []CatalogParam{{Name: "readers", Kind: harness.ParamInt, Default: "4"}}, entries[0].Params)
}
