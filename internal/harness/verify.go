package harness

import "github.com/roach88/racelab/internal/variant"

// Verify evaluates inv against rec and turns the result into a verdict for
// mode.
//
// A violated invariant is always VerdictViolated. A held invariant is
// VerdictHeld in a fixed mode but VerdictIndeterminate in buggy mode: the
// hazard simply did not show up this time, which says nothing about the
// bug being gone.
func Verify(mode variant.Mode, inv Invariant, rec OutcomeRecord) (Verdict, string) {
	if inv.Check == nil {
		return VerdictIndeterminate, "scenario declares no invariant"
	}
	held, detail := inv.Check(rec)
	if !held {
		return VerdictViolated, detail
	}
	if !mode.IsFixed() {
		if detail == "" {
			detail = "invariant held"
		}
		return VerdictIndeterminate, detail + " (hazard did not manifest this run)"
	}
	return VerdictHeld, detail
}
