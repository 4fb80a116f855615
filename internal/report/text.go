// Package report renders runs, trial batches, the scenario catalog and run
// history for the terminal or as JSON.
//
// Text output is line-oriented. Trace lines read
//
//	[BUGGY] client-3: added 100 over 100 increments
//
// and a run always ends with a results block that starts with
// "=== Results:" and ends with a "verdict:" line, so scripts can grep for
// either marker.
package report

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/roach88/racelab/internal/harness"
	"github.com/roach88/racelab/internal/trace"
	"github.com/roach88/racelab/internal/variant"
)

var (
	bold      = color.New(color.Bold)
	red       = color.New(color.FgRed, color.Bold)
	yellow    = color.New(color.FgYellow, color.Bold)
	cyan      = color.New(color.FgCyan)
	green     = color.New(color.FgGreen)
	dim       = color.New(color.Faint)
	separator = strings.Repeat("━", 40)
)

// SetColor turns terminal coloring on or off for every writer in the
// package. fatih/color already disables itself when stdout is not a TTY.
func SetColor(enabled bool) {
	color.NoColor = !enabled
}

// TraceSink returns a trace.Sink that writes colored trace lines to w as
// they are recorded.
func TraceSink(w io.Writer) trace.Sink {
	return func(tag string, e trace.Event) {
		writeLine(w, tag, e)
	}
}

// WriteTrace writes stored events the same way TraceSink does.
func WriteTrace(w io.Writer, tag string, events []trace.Event) {
	for _, e := range events {
		writeLine(w, tag, e)
	}
}

func writeLine(w io.Writer, tag string, e trace.Event) {
	tagColor(tag).Fprintf(w, "[%s]", tag)
	if e.Actor == trace.HarnessActor {
		dim.Fprintf(w, " %s: %s\n", e.Actor, e.Message)
		return
	}
	fmt.Fprintf(w, " %s: %s\n", e.Actor, e.Message)
}

func tagColor(tag string) *color.Color {
	if tag == variant.Buggy.Tag() {
		return red
	}
	return green
}

// WriteResult writes the results block for one run. sc may be nil when the
// run was loaded from history and the scenario is no longer registered.
func WriteResult(w io.Writer, sc *harness.Scenario, res *harness.Result) {
	fmt.Fprintln(w)
	bold.Fprintf(w, "=== Results: %s [%s] ===\n", res.Scenario, res.Tag)
	fmt.Fprintln(w, separator)

	if sc != nil {
		field(w, "title", sc.Title)
	}
	field(w, "run", res.RunID)
	field(w, "seed", fmt.Sprintf("%d", res.Seed))
	if len(res.Params) > 0 {
		field(w, "params", formatParams(res.Params))
	}
	field(w, "invariant", res.Invariant)
	if len(res.Outcome.State) > 0 {
		field(w, "state", formatState(res.Outcome.State))
	}
	field(w, "timed out", yesNo(res.TimedOut))
	field(w, "elapsed", formatDuration(res.Elapsed))
	if res.Fault != nil {
		fmt.Fprintf(w, "%-12s", "fault:")
		red.Fprintln(w, res.Fault.Error())
	}

	if len(res.Outcome.Actors) > 0 {
		fmt.Fprintln(w, "actors:")
		writeActors(w, res.Outcome.Actors)
	}

	fmt.Fprintln(w, separator)
	fmt.Fprint(w, "verdict: ")
	verdictColor(res.Verdict).Fprint(w, res.Verdict)
	if res.Reason != "" {
		fmt.Fprintf(w, " (%s)", res.Reason)
	}
	if res.Verdict != harness.VerdictFault && !res.Expected() {
		yellow.Fprintf(w, " [unexpected for %s]", res.Mode)
	}
	fmt.Fprintln(w)
}

func writeActors(w io.Writer, actors []harness.ActorOutcome) {
	nameWidth, stepWidth := 0, 0
	for _, a := range actors {
		nameWidth = max(nameWidth, len(a.Actor))
		stepWidth = max(stepWidth, len(a.LastStep))
	}
	for _, a := range actors {
		fmt.Fprintf(w, "  %-*s  ", nameWidth, a.Actor)
		statusColor(a.Status).Fprintf(w, "%-9s", a.Status)
		fmt.Fprintf(w, "  %-*s  %s", stepWidth, a.LastStep, formatDuration(a.Elapsed))
		if a.Reason != "" {
			dim.Fprintf(w, "  %s", a.Reason)
		}
		fmt.Fprintln(w)
	}
}

func field(w io.Writer, name, value string) {
	fmt.Fprintf(w, "%-12s", name+":")
	cyan.Fprintln(w, value)
}

func verdictColor(v harness.Verdict) *color.Color {
	switch v {
	case harness.VerdictHeld:
		return green
	case harness.VerdictIndeterminate:
		return yellow
	default:
		return red
	}
}

func statusColor(s harness.Status) *color.Color {
	if s == harness.StatusSucceeded {
		return green
	}
	return red
}

func formatParams(p map[string]string) string {
	parts := make([]string, 0, len(p))
	for _, k := range slices.Sorted(maps.Keys(p)) {
		parts = append(parts, k+"="+p[k])
	}
	return strings.Join(parts, " ")
}

func formatState(state map[string]any) string {
	parts := make([]string, 0, len(state))
	for _, k := range slices.Sorted(maps.Keys(state)) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, state[k]))
	}
	return strings.Join(parts, " ")
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Microsecond).String()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
