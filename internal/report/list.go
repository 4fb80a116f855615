package report

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/racelab/internal/harness"
	"github.com/roach88/racelab/internal/store"
	"github.com/roach88/racelab/internal/variant"
)

// WriteCatalog writes one row per scenario: name, kind, modes and title.
func WriteCatalog(w io.Writer, all []*harness.Scenario) error {
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tMODES\tTITLE")
	for _, sc := range all {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", sc.Name, kindLabel(sc), joinModes(sc.Modes), sc.Title)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return writeTable(w, &buf)
}

// WriteHistory writes one row per stored run, newest first as given.
func WriteHistory(w io.Writer, runs []store.Run) error {
	if len(runs) == 0 {
		dim.Fprintln(w, "no runs recorded")
		return nil
	}
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tSCENARIO\tMODE\tVERDICT\tELAPSED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.StartedAt.UTC().Format(time.RFC3339), r.Scenario, r.Mode, r.Verdict, formatDuration(r.Elapsed))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return writeTable(w, &buf)
}

// writeTable prints an aligned table with a bold header. Coloring happens
// after alignment since escape codes would throw tabwriter off.
func writeTable(w io.Writer, buf *bytes.Buffer) error {
	sc := bufio.NewScanner(buf)
	first := true
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " ")
		if first {
			bold.Fprintln(w, line)
			first = false
			continue
		}
		fmt.Fprintln(w, line)
	}
	return sc.Err()
}

func kindLabel(sc *harness.Scenario) string {
	label := cases.Title(language.English).String(string(sc.Kind))
	if sc.Flaky {
		label += " (flaky)"
	}
	return label
}

func joinModes(modes []variant.Mode) string {
	parts := make([]string, len(modes))
	for i, m := range modes {
		parts[i] = string(m)
	}
	return strings.Join(parts, ",")
}
