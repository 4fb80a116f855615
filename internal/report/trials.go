package report

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/roach88/racelab/internal/harness"
)

// WriteTrials writes the results block for a batch of trials. The final
// verdict line names the most frequent verdict.
func WriteTrials(w io.Writer, sc *harness.Scenario, sum *harness.TrialSummary) {
	fmt.Fprintln(w)
	bold.Fprintf(w, "=== Results: %s [%s] x %d trials ===\n", sum.Scenario, sum.Mode.Tag(), sum.Trials)
	fmt.Fprintln(w, separator)

	if sc != nil {
		field(w, "title", sc.Title)
	}
	for _, v := range sum.Verdicts() {
		fmt.Fprintf(w, "  %-20s", v)
		verdictColor(v).Fprintf(w, "%d\n", sum.Tally[v])
	}
	if len(sum.Faults) > 0 {
		fmt.Fprintln(w, "faults:")
		for _, code := range slices.Sorted(maps.Keys(sum.Faults)) {
			fmt.Fprintf(w, "  %-20s", code)
			red.Fprintf(w, "%d\n", sum.Faults[code])
		}
	}
	field(w, "expected", fmt.Sprintf("%d/%d (%.1f%%)", sum.Expected, sum.Trials, 100*sum.Rate()))
	field(w, "elapsed", formatDuration(sum.Elapsed))

	fmt.Fprintln(w, separator)
	top := Dominant(sum)
	fmt.Fprint(w, "verdict: ")
	verdictColor(top).Fprint(w, top)
	fmt.Fprintf(w, " in %d/%d trials\n", sum.Tally[top], sum.Trials)
}

// Dominant returns the most frequent verdict of a batch. Ties go to the
// verdict that sorts first.
func Dominant(sum *harness.TrialSummary) harness.Verdict {
	var top harness.Verdict
	for _, v := range sum.Verdicts() {
		if top == "" || sum.Tally[v] > sum.Tally[top] {
			top = v
		}
	}
	return top
}
