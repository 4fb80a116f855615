package harness

import (
	"time"

	"github.com/roach88/racelab/internal/trace"
	"github.com/roach88/racelab/internal/variant"
)

// Kind says what a scenario's hazard looks like when it manifests.
type Kind string

const (
	// KindRace hazards corrupt state or outcomes; every run terminates.
	KindRace Kind = "race"

	// KindDeadlock hazards hang. A watchdog fire is the expected
	// demonstration, not a harness fault.
	KindDeadlock Kind = "deadlock"
)

// Status is how an actor finished.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
	StatusPanicked  Status = "panicked"
)

// ActorOutcome is the final state of one actor.
type ActorOutcome struct {
	Actor    string        `json:"actor"`
	Role     string        `json:"role,omitempty"`
	Status   Status        `json:"status"`
	Reason   string        `json:"reason,omitempty"`
	LastStep string        `json:"last_step,omitempty"`
	Elapsed  time.Duration `json:"elapsed_ns"`
}

// OutcomeRecord is everything the verifier gets to look at: the resource
// state snapshot taken after all actors finished, and every actor outcome.
// It is built once per run and never modified.
type OutcomeRecord struct {
	State  map[string]any `json:"state"`
	Actors []ActorOutcome `json:"actors"`
}

// Actor returns the outcome for the named actor.
func (r OutcomeRecord) Actor(name string) (ActorOutcome, bool) {
	for _, a := range r.Actors {
		if a.Actor == name {
			return a, true
		}
	}
	return ActorOutcome{}, false
}

// Count returns how many actors, optionally restricted to role, finished
// with status. An empty role matches every actor.
func (r OutcomeRecord) Count(role string, status Status) int {
	n := 0
	for _, a := range r.Actors {
		if (role == "" || a.Role == role) && a.Status == status {
			n++
		}
	}
	return n
}

// Verdict is the verifier's conclusion about a run.
type Verdict string

const (
	// VerdictHeld means the safety property held.
	VerdictHeld Verdict = "invariant_held"

	// VerdictViolated means the hazard manifested.
	VerdictViolated Verdict = "invariant_violated"

	// VerdictIndeterminate means a buggy run happened to keep the
	// invariant. It never means the bug is absent.
	VerdictIndeterminate Verdict = "indeterminate"

	// VerdictFault means the harness itself failed; see Result.Fault.
	VerdictFault Verdict = "harness_fault"
)

// Result is the outcome of one scenario run.
type Result struct {
	RunID     string            `json:"run_id"`
	Scenario  string            `json:"scenario"`
	Mode      variant.Mode      `json:"mode"`
	Tag       string            `json:"tag"`
	Seed      uint64            `json:"seed"`
	Params    map[string]string `json:"params,omitempty"`
	Invariant string            `json:"invariant"`
	Verdict   Verdict           `json:"verdict"`
	Reason    string            `json:"reason,omitempty"`
	TimedOut  bool              `json:"timed_out"`
	Trace     []trace.Event     `json:"trace"`
	Outcome   OutcomeRecord     `json:"outcome"`
	StartedAt time.Time         `json:"started_at"`
	Elapsed   time.Duration     `json:"elapsed_ns"`
	Fault     *FaultError       `json:"fault,omitempty"`
}

// Expected reports whether the verdict is what the mode should produce: a
// violation in buggy mode, a held invariant in any fixed mode.
func (r *Result) Expected() bool {
	if r.Mode.IsFixed() {
		return r.Verdict == VerdictHeld
	}
	return r.Verdict == VerdictViolated
}
