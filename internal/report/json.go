package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/roach88/racelab/internal/harness"
	"github.com/roach88/racelab/internal/trace"
	"github.com/roach88/racelab/internal/variant"
)

// RunReport is the JSON form of one run. Lines holds the trace exactly as
// the text output prints it.
type RunReport struct {
	*harness.Result
	Expected bool     `json:"expected"`
	Lines    []string `json:"lines"`
}

// NewRunReport wraps res for JSON output.
func NewRunReport(res *harness.Result) RunReport {
	lines := make([]string, len(res.Trace))
	for i, e := range res.Trace {
		lines[i] = trace.Line(res.Tag, e)
	}
	return RunReport{
		Result:   res,
		Expected: res.Verdict != harness.VerdictFault && res.Expected(),
		Lines:    lines,
	}
}

// TrialsReport is the JSON form of a trial batch.
type TrialsReport struct {
	*harness.TrialSummary
	Rate     float64         `json:"rate"`
	Dominant harness.Verdict `json:"dominant"`
}

// NewTrialsReport wraps sum for JSON output.
func NewTrialsReport(sum *harness.TrialSummary) TrialsReport {
	return TrialsReport{TrialSummary: sum, Rate: sum.Rate(), Dominant: Dominant(sum)}
}

// CatalogEntry is the JSON form of one registered scenario.
type CatalogEntry struct {
	Name     string         `json:"name"`
	Title    string         `json:"title"`
	Summary  string         `json:"summary"`
	Kind     harness.Kind   `json:"kind"`
	Resource string         `json:"resource"`
	Modes    []variant.Mode `json:"modes"`
	Flaky    bool           `json:"flaky"`
	Timeout  string         `json:"timeout"`
	Params   []CatalogParam `json:"params,omitempty"`
}

// CatalogParam is the JSON form of a declared parameter.
type CatalogParam struct {
	Name    string            `json:"name"`
	Kind    harness.ParamKind `json:"kind"`
	Default string            `json:"default"`
	Usage   string            `json:"usage,omitempty"`
}

// NewCatalog converts registered scenarios for JSON output.
func NewCatalog(all []*harness.Scenario) []CatalogEntry {
	out := make([]CatalogEntry, 0, len(all))
	for _, sc := range all {
		e := CatalogEntry{
			Name:     sc.Name,
			Title:    sc.Title,
			Summary:  sc.Summary,
			Kind:     sc.Kind,
			Resource: sc.Resource,
			Modes:    sc.Modes,
			Flaky:    sc.Flaky,
			Timeout:  sc.EffectiveTimeout().String(),
		}
		for _, p := range sc.Params {
			e.Params = append(e.Params, CatalogParam{Name: p.Name, Kind: p.Kind, Default: p.Default, Usage: p.Usage})
		}
		out = append(out, e)
	}
	return out
}

// WriteJSON writes v as indented JSON. HTML characters are left alone so
// trace text reads the same as in text output.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
