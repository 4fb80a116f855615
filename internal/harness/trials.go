package harness

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/racelab/internal/variant"
)

// TrialSummary tallies repeated runs of one scenario in one mode.
type TrialSummary struct {
	Scenario string            `json:"scenario"`
	Mode     variant.Mode      `json:"mode"`
	Trials   int               `json:"trials"`
	Tally    map[Verdict]int   `json:"tally"`
	Expected int               `json:"expected"`
	Faults   map[FaultCode]int `json:"faults,omitempty"`
	Elapsed  time.Duration     `json:"elapsed_ns"`
	Results  []*Result         `json:"-"`
}

// Rate returns the share of trials that produced the expected verdict.
func (s *TrialSummary) Rate() float64 {
	if s.Trials == 0 {
		return 0
	}
	return float64(s.Expected) / float64(s.Trials)
}

// Verdicts returns the tallied verdicts in a stable order.
func (s *TrialSummary) Verdicts() []Verdict {
	out := make([]Verdict, 0, len(s.Tally))
	for v := range s.Tally {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RunTrials runs sc n times in mode with at most parallel runs at once.
//
// Harness faults are counted, not returned; only errors that would stop
// every trial (an unsupported mode, a bad parameter) or cancellation of
// ctx abort the batch. When a seed option is given, trial i uses seed+i so
// any single trial can be replayed.
func RunTrials(ctx context.Context, sc *Scenario, mode variant.Mode, n, parallel int, opts ...Option) (*TrialSummary, error) {
	if parallel <= 0 {
		parallel = 1
	}
	base := newConfig(opts)

	start := time.Now()
	results := make([]*Result, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			trialOpts := append([]Option{}, opts...)
			if base.seed != nil {
				trialOpts = append(trialOpts, WithSeed(*base.seed+uint64(i)))
			}
			res, err := Run(gctx, sc, mode, trialOpts...)
			if err != nil && !IsFault(err) {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sum := &TrialSummary{
		Scenario: sc.Name,
		Mode:     mode,
		Trials:   n,
		Tally:    make(map[Verdict]int),
		Faults:   make(map[FaultCode]int),
		Elapsed:  time.Since(start),
		Results:  results,
	}
	for _, r := range results {
		sum.Tally[r.Verdict]++
		if r.Fault != nil {
			sum.Faults[r.Fault.Code]++
		}
		if r.Expected() {
			sum.Expected++
		}
	}
	return sum, nil
}
