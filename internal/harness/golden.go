package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/racelab/internal/trace"
)

// TraceSnapshot is the deterministic part of a run.
//
// Lines from different actors interleave differently from run to run, but
// each actor's own lines follow its steps in order, so the snapshot groups
// messages by actor. Seeds, timings and run IDs are left out.
type TraceSnapshot struct {
	Scenario string              `json:"scenario"`
	Tag      string              `json:"tag"`
	Verdict  Verdict             `json:"verdict"`
	TimedOut bool                `json:"timed_out"`
	Actors   map[string][]string `json:"actors"`
	Statuses map[string]Status   `json:"statuses"`
}

// Snapshot extracts the deterministic part of res. Harness lines are
// dropped since they carry seeds and durations.
func Snapshot(res *Result) TraceSnapshot {
	s := TraceSnapshot{
		Scenario: res.Scenario,
		Tag:      res.Tag,
		Verdict:  res.Verdict,
		TimedOut: res.TimedOut,
		Actors:   make(map[string][]string),
		Statuses: make(map[string]Status, len(res.Outcome.Actors)),
	}
	for _, e := range res.Trace {
		if e.Actor == trace.HarnessActor {
			continue
		}
		s.Actors[e.Actor] = append(s.Actors[e.Actor], e.Message)
	}
	for _, a := range res.Outcome.Actors {
		s.Statuses[a.Actor] = a.Status
	}
	return s
}

// AssertGolden compares res's snapshot against testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/... -update
func AssertGolden(t *testing.T, name string, res *Result) {
	t.Helper()

	data, err := json.MarshalIndent(Snapshot(res), "", "  ")
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	data = append(data, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
